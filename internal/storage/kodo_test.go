package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qiniu/go-sdk/v7/auth"
	qiniu "github.com/qiniu/go-sdk/v7/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codedErr struct{ code int }

func (e codedErr) Error() string { return fmt.Sprintf("kodo error %d", e.code) }
func (e codedErr) HttpCode() int { return e.code }

type fakeKodoBucket struct {
	err  error
	size int64
}

func (f *fakeKodoBucket) Stat(string, string) (qiniu.FileInfo, error) {
	if f.err != nil {
		return qiniu.FileInfo{}, f.err
	}
	return qiniu.FileInfo{Fsize: f.size}, nil
}

func (f *fakeKodoBucket) Delete(string, string) error { return f.err }

func (f *fakeKodoBucket) ListFiles(string, string, string, string, int) ([]qiniu.ListItem, []string, string, bool, error) {
	return nil, nil, "", false, f.err
}

type fakeKodoUploader struct {
	err error
	key string
}

func (f *fakeKodoUploader) PutFile(_ context.Context, ret interface{}, _, key, _ string, _ *qiniu.PutExtra) error {
	if f.err != nil {
		return f.err
	}
	f.key = key
	if r, ok := ret.(*qiniu.PutRet); ok {
		r.Key = key
		r.Hash = "Fhash"
	}
	return nil
}

func newTestKodo(bucket *fakeKodoBucket, uploader *fakeKodoUploader, domain string) *Kodo {
	return &Kodo{
		mac:      auth.New("ak", "sk"),
		bucket:   "files",
		domain:   normalizeDomain(domain),
		manager:  bucket,
		uploader: uploader,
		http:     http.DefaultClient,
	}
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com", normalizeDomain("cdn.example.com"))
	assert.Equal(t, "http://cdn.example.com", normalizeDomain("http://cdn.example.com/"))
	assert.Equal(t, "https://cdn.example.com", normalizeDomain("https://cdn.example.com"))
}

func TestClassifyKodo(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "should map 612 to not found", err: codedErr{code: 612}, wantErr: ErrNotFound},
		{name: "should map 404 to not found", err: codedErr{code: http.StatusNotFound}, wantErr: ErrNotFound},
		{name: "should map 413 to capacity", err: codedErr{code: http.StatusRequestEntityTooLarge}, wantErr: ErrCapacity},
		{name: "should map missing bucket to transport", err: codedErr{code: 631}, wantErr: ErrTransport},
		{name: "should map bad token to transport", err: codedErr{code: http.StatusUnauthorized}, wantErr: ErrTransport},
		{name: "should map uncoded errors to transport", err: errors.New("connection reset"), wantErr: ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyKodo("stat", "k", tt.err), tt.wantErr)
		})
	}
}

func TestKodo_Put(t *testing.T) {
	uploader := &fakeKodoUploader{}
	k := newTestKodo(&fakeKodoBucket{size: 4}, uploader, "cdn.example.com")

	rec, err := k.Put(context.Background(), writeSource(t, "data"), "uploads/1_ab.txt")
	require.NoError(t, err)

	assert.Equal(t, BackendKodo, rec.Backend)
	assert.Equal(t, "uploads/1_ab.txt", uploader.key)
	assert.Equal(t, int64(4), rec.Size)
	assert.Equal(t, "Fhash", rec.ETag)
}

func TestKodo_DeleteMissingIsNotAnError(t *testing.T) {
	k := newTestKodo(&fakeKodoBucket{err: codedErr{code: 612}}, &fakeKodoUploader{}, "cdn.example.com")

	assert.NoError(t, k.Delete(context.Background(), "k"))

	ok, err := k.Exists(context.Background(), "k")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestKodo_GetStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/uploads/1_ab.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "hello")
	}))
	defer srv.Close()

	k := newTestKodo(&fakeKodoBucket{}, &fakeKodoUploader{}, srv.URL)

	obj, err := k.GetStream(context.Background(), "uploads/1_ab.txt")
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "text/plain", obj.ContentType)

	_, err = k.GetStream(context.Background(), "uploads/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKodo_SignedURL(t *testing.T) {
	k := newTestKodo(&fakeKodoBucket{}, &fakeKodoUploader{}, "cdn.example.com")

	u, err := k.SignedURL(context.Background(), "uploads/1_ab.txt", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, u, "https://cdn.example.com/uploads/1_ab.txt")
	assert.Contains(t, u, "token=")
}

func TestRunWithContext_GivesUpOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	release := make(chan struct{})
	defer close(release)

	err := runWithContext(ctx, func() error {
		<-release
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
