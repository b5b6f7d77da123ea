package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/qiniu/go-sdk/v7/auth"
	qiniu "github.com/qiniu/go-sdk/v7/storage"
)

// Kodo status codes that are not plain HTTP statuses.
const (
	kodoNoSuchEntry  = 612
	kodoNoSuchBucket = 631
)

// kodoSignTTL is how long the private URL used to stream an object stays valid.
const kodoSignTTL = 10 * time.Minute

type kodoBucket interface {
	Stat(bucket, key string) (qiniu.FileInfo, error)
	Delete(bucket, key string) error
	ListFiles(bucket, prefix, delimiter, marker string, limit int) ([]qiniu.ListItem, []string, string, bool, error)
}

type kodoUploader interface {
	PutFile(ctx context.Context, ret interface{}, uptoken, key, localFile string, extra *qiniu.PutExtra) error
}

// Kodo talks to Qiniu Kodo. Uploads use scoped upload tokens; downloads go
// through the domain bound to the bucket with a private download token.
type Kodo struct {
	mac      *auth.Credentials
	bucket   string
	domain   string
	manager  kodoBucket
	uploader kodoUploader
	http     *http.Client
}

// NewKodo builds a Kodo adapter. Credentials must already be validated.
func NewKodo(creds Credentials) (*Kodo, error) {
	mac := auth.New(creds.AccessKeyID, creds.AccessKeySecret)
	cfg := &qiniu.Config{UseHTTPS: true}

	return &Kodo{
		mac:      mac,
		bucket:   creds.Bucket,
		domain:   normalizeDomain(creds.Domain),
		manager:  qiniu.NewBucketManager(mac, cfg),
		uploader: qiniu.NewFormUploader(cfg),
		http:     &http.Client{},
	}, nil
}

func normalizeDomain(domain string) string {
	domain = strings.TrimRight(domain, "/")
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return domain
}

func (k *Kodo) Backend() Backend { return BackendKodo }

func (k *Kodo) Put(ctx context.Context, localPath, key string) (*Receipt, error) {
	policy := qiniu.PutPolicy{Scope: k.bucket + ":" + key}
	token := policy.UploadToken(k.mac)

	var ret qiniu.PutRet
	if err := k.uploader.PutFile(ctx, &ret, token, key, localPath, &qiniu.PutExtra{}); err != nil {
		return nil, classifyKodo("put", key, err)
	}

	info, err := k.stat(ctx, key)
	if err != nil {
		return &Receipt{Backend: BackendKodo, Key: key, Size: -1, ETag: ret.Hash}, nil
	}
	return &Receipt{Backend: BackendKodo, Key: key, Size: info.Fsize, ETag: ret.Hash}, nil
}

func (k *Kodo) GetStream(ctx context.Context, key string) (*Object, error) {
	u := k.privateURL(key, kodoSignTTL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, transportErr("get", key, err)
	}

	resp, err := k.http.Do(req)
	if err != nil {
		return nil, transportErr("get", key, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, notFoundErr("get", key)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, transportErr("get", key, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	return &Object{Body: resp.Body, Size: resp.ContentLength, ContentType: resp.Header.Get("Content-Type")}, nil
}

func (k *Kodo) Delete(ctx context.Context, key string) error {
	err := runWithContext(ctx, func() error { return k.manager.Delete(k.bucket, key) })
	if err != nil {
		if err = classifyKodo("delete", key, err); errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (k *Kodo) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := k.stat(ctx, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (k *Kodo) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return k.privateURL(key, ttl), nil
}

func (k *Kodo) Ping(ctx context.Context) error {
	return runWithContext(ctx, func() error {
		_, _, _, _, err := k.manager.ListFiles(k.bucket, "", "", "", 1)
		if err != nil {
			return classifyKodo("ping", k.bucket, err)
		}
		return nil
	})
}

func (k *Kodo) stat(ctx context.Context, key string) (qiniu.FileInfo, error) {
	var info qiniu.FileInfo
	err := runWithContext(ctx, func() error {
		var err error
		info, err = k.manager.Stat(k.bucket, key)
		return err
	})
	if err != nil {
		return info, classifyKodo("stat", key, err)
	}
	return info, nil
}

func (k *Kodo) privateURL(key string, ttl time.Duration) string {
	deadline := time.Now().Add(ttl).Unix()
	return qiniu.MakePrivateURL(k.mac, k.domain, key, deadline)
}

func classifyKodo(op, key string, err error) error {
	if errors.Is(err, ErrTransport) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrCapacity) {
		return err
	}
	var coded interface{ HttpCode() int }
	if errors.As(err, &coded) {
		switch coded.HttpCode() {
		case kodoNoSuchEntry, http.StatusNotFound:
			return notFoundErr(op, key)
		case http.StatusRequestEntityTooLarge:
			return capacityErr(op, key, err)
		case kodoNoSuchBucket:
			return transportErr(op, key, err)
		}
	}
	return transportErr(op, key, err)
}

// runWithContext runs fn, which cannot be cancelled itself, and gives up
// waiting once ctx is done.
func runWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
