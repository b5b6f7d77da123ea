// Package storage defines the contract every object-storage backend implements
// and the registry that selects an implementation by backend name.
//
// Callers never branch on backend identity: they ask the Registry for an Adapter
// built from the current credentials and use the capability set below. Adapter
// errors are always wrapped around one of the sentinel errors of this package so
// callers can classify them with errors.Is without looking at SDK error text.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Backend names a storage provider. The value is persisted with every file.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendCOS   Backend = "tencent" // Tencent Cloud COS
	BackendOSS   Backend = "aliyun"  // Alibaba Cloud OSS
	BackendOBS   Backend = "huawei"  // Huawei Cloud OBS
	BackendKodo  Backend = "qiniu"   // Qiniu Kodo
	BackendS3    Backend = "aws"     // Amazon S3
)

var (
	ErrNotFound       = errors.New("storage: object not found")
	ErrTransport      = errors.New("storage: transport failure")
	ErrCapacity       = errors.New("storage: capacity exceeded")
	ErrUnsupported    = errors.New("storage: capability not supported")
	ErrInvalidKey     = errors.New("storage: invalid key")
	ErrUnknownBackend = errors.New("storage: unknown backend")
)

// ConfigError reports the credential fields a backend requires but did not get.
type ConfigError struct {
	Backend Backend
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("storage: backend %q is missing required fields: %s", e.Backend, strings.Join(e.Missing, ", "))
}

// Credentials is the per-backend configuration bundle persisted in settings.
// Which fields are required depends on the backend, see Registry.Validate.
type Credentials struct {
	AccessKeyID     string `json:"accessKeyId,omitempty"`
	AccessKeySecret string `json:"accessKeySecret,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	Region          string `json:"region,omitempty"`
	Domain          string `json:"domain,omitempty"`
	// Endpoint overrides the endpoint derived from Region (private clouds, MinIO).
	Endpoint string `json:"endpoint,omitempty"`
}

// field returns a credential value by its JSON name.
func (c Credentials) field(name string) string {
	switch name {
	case "accessKeyId":
		return c.AccessKeyID
	case "accessKeySecret":
		return c.AccessKeySecret
	case "bucket":
		return c.Bucket
	case "region":
		return c.Region
	case "domain":
		return c.Domain
	case "endpoint":
		return c.Endpoint
	}
	return ""
}

// Receipt describes an object written by Put.
type Receipt struct {
	Backend Backend
	Key     string
	Size    int64
	ETag    string
}

// Object is an open, lazily read object. Body must be closed by the caller.
// Size is -1 when the backend did not report it.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// Adapter is the capability set shared by every backend.
type Adapter interface {
	// Backend reports which provider this adapter talks to.
	Backend() Backend

	// Put uploads the file at localPath under key. The source file is fully
	// consumed but never removed; the caller owns it.
	Put(ctx context.Context, localPath, key string) (*Receipt, error)

	// GetStream opens key for reading without buffering the object.
	// Returns ErrNotFound when the key is absent.
	GetStream(ctx context.Context, key string) (*Object, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present. Only connectivity problems are errors.
	Exists(ctx context.Context, key string) (bool, error)

	// SignedURL returns a time-limited direct download URL, or ErrUnsupported
	// when the backend cannot serve objects out of band.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Ping performs a lightweight probe (bucket head or a one-item listing).
	Ping(ctx context.Context) error
}

// transportErr wraps err as a transport failure while keeping the original
// error in the chain for logging.
func transportErr(op, key string, err error) error {
	return fmt.Errorf("%s %q: %w: %w", op, key, ErrTransport, err)
}

func notFoundErr(op, key string) error {
	return fmt.Errorf("%s %q: %w", op, key, ErrNotFound)
}

func capacityErr(op, key string, err error) error {
	return fmt.Errorf("%s %q: %w: %w", op, key, ErrCapacity, err)
}
