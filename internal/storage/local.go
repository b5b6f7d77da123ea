package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Local stores objects as plain files below a root directory.
// Keys are slash separated paths relative to the root.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed and returns a Local adapter.
func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", abs, err)
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute root directory.
func (l *Local) Root() string { return l.root }

func (l *Local) Backend() Backend { return BackendLocal }

// Put copies localPath to key through a temp file and an atomic rename.
func (l *Local) Put(ctx context.Context, localPath, key string) (*Receipt, error) {
	dst, err := l.resolve(key)
	if err != nil {
		return nil, err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", localPath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return nil, classifyLocal("put", key, err)
	}

	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, classifyLocal("put", key, err)
	}

	size, err := io.Copy(f, &ctxReader{ctx: ctx, r: src})
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, dst)
	}
	if err != nil {
		os.Remove(tmp)
		return nil, classifyLocal("put", key, err)
	}

	return &Receipt{Backend: BackendLocal, Key: key, Size: size}, nil
}

func (l *Local) GetStream(_ context.Context, key string) (*Object, error) {
	p, err := l.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFoundErr("get", key)
		}
		return nil, classifyLocal("get", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, classifyLocal("get", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, notFoundErr("get", key)
	}

	return &Object{
		Body:        f,
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(path.Ext(key)),
	}, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return classifyLocal("delete", key, err)
	}
	return nil
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	p, err := l.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, classifyLocal("exists", key, err)
	}
	return !info.IsDir(), nil
}

// SignedURL is not available for local disk; objects are proxied instead.
func (l *Local) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", fmt.Errorf("local signed url: %w", ErrUnsupported)
}

// Ping checks that the root directory is writable.
func (l *Local) Ping(context.Context) error {
	f, err := os.CreateTemp(l.root, ".probe-*")
	if err != nil {
		return classifyLocal("ping", "", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// resolve maps key to an absolute path inside root, rejecting traversal.
func (l *Local) resolve(key string) (string, error) {
	if key == "" || strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	if clean == "/" || clean != "/"+key {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

func classifyLocal(op, key string, err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return capacityErr(op, key, err)
	}
	return transportErr(op, key, err)
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
