package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioAPI is the part of *minio.Client the S3-compatible adapter uses.
type minioAPI interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	OpenObject(ctx context.Context, bucketName, objectName string) (io.ReadCloser, minio.ObjectInfo, error)
}

type minioClient struct {
	*minio.Client
}

// OpenObject returns the body together with its metadata. GetObject is lazy;
// Stat sends the request so a missing key or a dead endpoint fails here, under
// the caller's deadline, instead of on the first Read.
func (c minioClient) OpenObject(ctx context.Context, bucketName, objectName string) (io.ReadCloser, minio.ObjectInfo, error) {
	obj, err := c.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, minio.ObjectInfo{}, err
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, minio.ObjectInfo{}, err
	}
	return obj, info, nil
}

// S3Compatible serves providers that expose an S3-compatible API (Tencent COS,
// Alibaba OSS, Huawei OBS) through minio-go. Only the endpoint differs.
type S3Compatible struct {
	backend Backend
	client  minioAPI
	bucket  string
}

// NewS3Compatible builds an adapter for backend b. Credentials must already be validated.
func NewS3Compatible(b Backend, creds Credentials) (*S3Compatible, error) {
	endpoint, secure, err := s3CompatibleEndpoint(b, creds)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(creds.AccessKeyID, creds.AccessKeySecret, ""),
		Secure:       secure,
		Region:       creds.Region,
		BucketLookup: minio.BucketLookupDNS,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", b, err)
	}

	return &S3Compatible{backend: b, client: minioClient{client}, bucket: creds.Bucket}, nil
}

// s3CompatibleEndpoint derives the provider endpoint from the region unless
// creds.Endpoint overrides it.
func s3CompatibleEndpoint(b Backend, creds Credentials) (string, bool, error) {
	if creds.Endpoint != "" {
		u, err := url.Parse(creds.Endpoint)
		if err != nil || u.Host == "" {
			return creds.Endpoint, true, nil
		}
		return u.Host, u.Scheme != "http", nil
	}

	switch b {
	case BackendCOS:
		return "cos." + creds.Region + ".myqcloud.com", true, nil
	case BackendOSS:
		if strings.HasPrefix(creds.Region, "oss-") {
			return creds.Region + ".aliyuncs.com", true, nil
		}
		return "oss-" + creds.Region + ".aliyuncs.com", true, nil
	case BackendOBS:
		return "obs." + creds.Region + ".myhuaweicloud.com", true, nil
	}
	return "", false, fmt.Errorf("%w: %q has no s3-compatible endpoint", ErrUnknownBackend, b)
}

func (s *S3Compatible) Backend() Backend { return s.backend }

// Put streams the file with FPutObject, which switches to multipart for large files.
func (s *S3Compatible) Put(ctx context.Context, localPath, key string) (*Receipt, error) {
	info, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: mime.TypeByExtension(path.Ext(key)),
	})
	if err != nil {
		return nil, s.classify("put", key, err)
	}
	return &Receipt{Backend: s.backend, Key: key, Size: info.Size, ETag: info.ETag}, nil
}

// GetStream fails before any body is returned when the key is missing.
func (s *S3Compatible) GetStream(ctx context.Context, key string) (*Object, error) {
	body, info, err := s.client.OpenObject(ctx, s.bucket, key)
	if err != nil {
		return nil, s.classify("get", key, err)
	}
	return &Object{Body: body, Size: info.Size, ContentType: info.ContentType}, nil
}

func (s *S3Compatible) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		if err = s.classify("delete", key, err); errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (s *S3Compatible) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if err = s.classify("exists", key, err); errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Compatible) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", s.classify("sign", key, err)
	}
	return u.String(), nil
}

func (s *S3Compatible) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return s.classify("ping", s.bucket, err)
	}
	if !ok {
		return transportErr("ping", s.bucket, fmt.Errorf("bucket %q does not exist", s.bucket))
	}
	return nil
}

func (s *S3Compatible) classify(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || (resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket"):
		return notFoundErr(op, key)
	case resp.Code == "EntityTooLarge" || resp.Code == "QuotaExceeded" || resp.StatusCode == http.StatusRequestEntityTooLarge:
		return capacityErr(op, key, err)
	}
	return transportErr(op, key, err)
}
