package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// timeoutAdapter bounds every call of a remote adapter. A call that runs out of
// time fails with ErrTransport, the same as any other network failure.
type timeoutAdapter struct {
	Adapter
	timeout time.Duration
}

// WithTimeout wraps a so that each call is bounded by d. For GetStream only
// opening the object is bounded; reading the body is paced by the caller.
func WithTimeout(a Adapter, d time.Duration) Adapter {
	if d <= 0 {
		return a
	}
	return &timeoutAdapter{Adapter: a, timeout: d}
}

func (t *timeoutAdapter) Put(ctx context.Context, localPath, key string) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	rec, err := t.Adapter.Put(ctx, localPath, key)
	return rec, deadlineAsTransport("put", key, err)
}

func (t *timeoutAdapter) GetStream(ctx context.Context, key string) (*Object, error) {
	ctx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(t.timeout, cancel)

	obj, err := t.Adapter.GetStream(ctx, key)
	if err != nil {
		timer.Stop()
		cancel()
		return nil, deadlineAsTransport("get", key, err)
	}
	if !timer.Stop() {
		// The deadline fired while the object was being opened.
		obj.Body.Close()
		cancel()
		return nil, transportErr("get", key, context.DeadlineExceeded)
	}

	obj.Body = &cancelOnClose{ReadCloser: obj.Body, cancel: cancel}
	return obj, nil
}

func (t *timeoutAdapter) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return deadlineAsTransport("delete", key, t.Adapter.Delete(ctx, key))
}

func (t *timeoutAdapter) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	ok, err := t.Adapter.Exists(ctx, key)
	return ok, deadlineAsTransport("exists", key, err)
}

func (t *timeoutAdapter) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	u, err := t.Adapter.SignedURL(ctx, key, ttl)
	return u, deadlineAsTransport("sign", key, err)
}

func (t *timeoutAdapter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return deadlineAsTransport("ping", "", t.Adapter.Ping(ctx))
}

// deadlineAsTransport makes sure a context deadline surfaces as ErrTransport
// even when the wrapped adapter returned the bare context error.
func deadlineAsTransport(op, key string, err error) error {
	if err == nil || errors.Is(err, ErrTransport) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return transportErr(op, key, err)
	}
	return err
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	if err := c.ReadCloser.Close(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	return nil
}
