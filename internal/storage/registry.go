package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

var (
	keyPairFields      = []string{"accessKeyId", "accessKeySecret", "bucket", "region"}
	domainBoundFields  = []string{"accessKeyId", "accessKeySecret", "bucket", "domain"}
	defaultCacheSize   = 32
	defaultCacheTTL    = 10 * time.Minute
	testConnectionWait = 10 * time.Second
)

// Factory constructs an adapter from already validated credentials.
type Factory func(creds Credentials) (Adapter, error)

// Spec describes how to build and validate one backend.
type Spec struct {
	// DisplayName is shown in the admin settings form.
	DisplayName string
	// Required lists the credential fields (JSON names) that must be non-empty.
	Required []string
	New      Factory
}

// BackendInfo is the public description of a registered backend.
type BackendInfo struct {
	Backend     Backend  `json:"backend"`
	DisplayName string   `json:"displayName"`
	Required    []string `json:"requiredFields"`
}

// Registry selects and instantiates adapters by backend name.
// The local adapter is shared; remote adapters are built from the credentials
// passed to Open and cached by a fingerprint of those credentials, so a settings
// change always produces a fresh client.
type Registry struct {
	specs   map[Backend]Spec
	local   Adapter
	timeout time.Duration
	clients *expirable.LRU[string, Adapter]
}

// NewRegistry returns a registry with every built-in backend registered.
// timeout bounds each remote adapter call; zero disables the bound.
func NewRegistry(local Adapter, timeout time.Duration) *Registry {
	r := &Registry{
		specs:   make(map[Backend]Spec),
		local:   local,
		timeout: timeout,
		clients: expirable.NewLRU[string, Adapter](defaultCacheSize, nil, defaultCacheTTL),
	}

	r.Register(BackendLocal, Spec{
		DisplayName: "Local disk",
		New:         func(Credentials) (Adapter, error) { return local, nil },
	})
	r.Register(BackendCOS, Spec{
		DisplayName: "Tencent Cloud COS",
		Required:    keyPairFields,
		New:         func(c Credentials) (Adapter, error) { return NewS3Compatible(BackendCOS, c) },
	})
	r.Register(BackendOSS, Spec{
		DisplayName: "Alibaba Cloud OSS",
		Required:    keyPairFields,
		New:         func(c Credentials) (Adapter, error) { return NewS3Compatible(BackendOSS, c) },
	})
	r.Register(BackendOBS, Spec{
		DisplayName: "Huawei Cloud OBS",
		Required:    keyPairFields,
		New:         func(c Credentials) (Adapter, error) { return NewS3Compatible(BackendOBS, c) },
	})
	r.Register(BackendS3, Spec{
		DisplayName: "Amazon S3",
		Required:    keyPairFields,
		New:         func(c Credentials) (Adapter, error) { return NewS3(c) },
	})
	r.Register(BackendKodo, Spec{
		DisplayName: "Qiniu Kodo",
		Required:    domainBoundFields,
		New:         func(c Credentials) (Adapter, error) { return NewKodo(c) },
	})

	return r
}

// Register adds or replaces a backend. It must not be called concurrently with Open.
func (r *Registry) Register(b Backend, spec Spec) {
	r.specs[b] = spec
	r.clients.Purge()
}

// Local returns the local disk adapter used as the upload fallback.
func (r *Registry) Local() Adapter {
	return r.local
}

// Backends lists the registered backends sorted by name.
func (r *Registry) Backends() []BackendInfo {
	out := make([]BackendInfo, 0, len(r.specs))
	for b, spec := range r.specs {
		required := spec.Required
		if required == nil {
			required = []string{}
		}
		out = append(out, BackendInfo{Backend: b, DisplayName: spec.DisplayName, Required: required})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Backend < out[j].Backend })
	return out
}

// Validate checks that creds carry every field the backend requires.
// Returns ErrUnknownBackend or a *ConfigError naming all missing fields.
func (r *Registry) Validate(b Backend, creds Credentials) error {
	spec, ok := r.specs[b]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, b)
	}

	var missing []string
	for _, name := range spec.Required {
		if creds.field(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{Backend: b, Missing: missing}
	}
	return nil
}

// Open validates creds and returns the adapter for backend b.
func (r *Registry) Open(b Backend, creds Credentials) (Adapter, error) {
	if err := r.Validate(b, creds); err != nil {
		return nil, err
	}
	if b == BackendLocal {
		return r.local, nil
	}

	fp := fingerprint(b, creds)
	if a, ok := r.clients.Get(fp); ok {
		return a, nil
	}

	a, err := r.specs[b].New(creds)
	if err != nil {
		return nil, fmt.Errorf("open %s adapter: %w", b, err)
	}
	a = WithTimeout(a, r.timeout)
	r.clients.Add(fp, a)
	return a, nil
}

// TestConnection builds an adapter from creds, which need not be saved yet, and
// probes it. It never returns an error: any failure yields false.
func (r *Registry) TestConnection(ctx context.Context, b Backend, creds Credentials) bool {
	if err := r.Validate(b, creds); err != nil {
		log.Warn().Err(err).Str("backend", string(b)).Msg("connection test rejected")
		return false
	}

	var a Adapter
	if b == BackendLocal {
		a = r.local
	} else {
		built, err := r.specs[b].New(creds)
		if err != nil {
			log.Warn().Err(err).Str("backend", string(b)).Msg("connection test: adapter construction failed")
			return false
		}
		a = built
	}

	ctx, cancel := context.WithTimeout(ctx, testConnectionWait)
	defer cancel()

	if err := a.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("backend", string(b)).Msg("connection test failed")
		return false
	}
	return true
}

// IsConfigError reports whether err is a credential validation failure.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr) || errors.Is(err, ErrUnknownBackend)
}

func fingerprint(b Backend, creds Credentials) string {
	raw, _ := json.Marshal(creds)
	sum := sha256.Sum256(append([]byte(string(b)+"\x00"), raw...))
	return hex.EncodeToString(sum[:])
}
