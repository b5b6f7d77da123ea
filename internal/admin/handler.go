package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/quickshare/service/internal/files"
	"github.com/quickshare/service/internal/response"
	"github.com/quickshare/service/internal/settings"
	"github.com/quickshare/service/internal/share"
	"github.com/quickshare/service/internal/storage"
)

// secretMask replaces stored secrets in responses. Sending it back in an
// update keeps the stored value.
const secretMask = "******"

// Handler holds HTTP handlers for admin endpoints.
type Handler struct {
	auth     *Authenticator
	settings *settings.Manager
	registry *storage.Registry
	files    *files.Service
}

// NewHandler creates a new admin Handler.
func NewHandler(auth *Authenticator, mgr *settings.Manager, registry *storage.Registry, svc *files.Service) *Handler {
	return &Handler{auth: auth, settings: mgr, registry: registry, files: svc}
}

type loginRequest struct {
	Password string `json:"password" example:"admin123"`
}

type settingsData struct {
	Settings *settings.Settings   `json:"settings"`
	Backends []storage.BackendInfo `json:"backends"`
}

type testConnectionRequest struct {
	Backend     storage.Backend     `json:"backend"     example:"tencent"`
	Credentials storage.Credentials `json:"credentials"`
}

type testConnectionData struct {
	Connected bool `json:"connected" example:"true"`
}

type listData struct {
	Files  []share.FileSummary `json:"files"`
	Total  int64               `json:"total"  example:"42"`
	Limit  int                 `json:"limit"  example:"20"`
	Offset int                 `json:"offset" example:"0"`
}

type summaryData struct {
	*share.Summary
	TotalSizeHuman string `json:"totalSizeHuman" example:"1.3 GB"`
}

type cleanupData struct {
	Expired int64 `json:"expired" example:"3"`
}

type reclaimData struct {
	Reclaimed int64 `json:"reclaimed" example:"3"`
}

// Login godoc
//
//	@Summary		Admin login
//	@Description	Exchanges the admin password for a bearer token.
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			request	body		loginRequest	true	"Admin password"
//	@Success		200		{object}	response.Envelope{data=Token}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Router			/admin/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	tok, err := h.auth.Login(req.Password)
	if errors.Is(err, ErrInvalidPassword) {
		log.Warn().Str("remote_addr", r.RemoteAddr).Msg("admin login rejected")
		response.Unauthorized(w, "invalid password")
		return
	}
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.OK(w, "login successful", tok)
}

// GetSettings godoc
//
//	@Summary		Get settings
//	@Description	Returns the runtime settings with secrets masked, plus the registered storage backends.
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=settingsData}
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/admin/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.OK(w, "", settingsData{Settings: maskSecrets(s), Backends: h.registry.Backends()})
}

// UpdateSettings godoc
//
//	@Summary		Replace settings
//	@Description	Validates and replaces the runtime settings. The active backend must have complete credentials. A masked secret keeps the stored value.
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		settings.Settings	true	"New settings"
//	@Success		200		{object}	response.Envelope{data=settingsData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/admin/settings [put]
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	current, err := h.settings.Get(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if in.Backends == nil {
		in.Backends = map[storage.Backend]storage.Credentials{}
	}
	for b, c := range in.Backends {
		in.Backends[b] = restoreSecret(c, current.Credentials(b))
	}

	saved, err := h.settings.Replace(r.Context(), &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	log.Info().Str("active_backend", string(saved.ActiveBackend)).Msg("settings updated")
	response.OK(w, "settings saved", settingsData{Settings: maskSecrets(saved), Backends: h.registry.Backends()})
}

// TestConnection godoc
//
//	@Summary		Test storage connection
//	@Description	Probes a backend with the given credentials, which need not be saved. A masked secret is taken from the stored settings.
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		testConnectionRequest	true	"Backend and credentials"
//	@Success		200		{object}	response.Envelope{data=testConnectionData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Router			/admin/settings/test [post]
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req testConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Backend == "" {
		response.BadRequest(w, "backend is required")
		return
	}

	current, err := h.settings.Get(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	creds := restoreSecret(req.Credentials, current.Credentials(req.Backend))

	ok := h.registry.TestConnection(r.Context(), req.Backend, creds)
	msg := "connection succeeded"
	if !ok {
		msg = "connection failed"
	}
	response.OK(w, msg, testConnectionData{Connected: ok})
}

// ListFiles godoc
//
//	@Summary		List files
//	@Description	Lists live files with their share links, newest first.
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			limit	query		int	false	"Page size (default 20, max 100)"
//	@Param			offset	query		int	false	"Offset"
//	@Success		200		{object}	response.Envelope{data=listData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Router			/admin/files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		response.BadRequest(w, "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		response.BadRequest(w, "offset must be an integer")
		return
	}

	list, total, err := h.files.List(r.Context(), limit, offset)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	response.OK(w, "", listData{Files: list, Total: total, Limit: limit, Offset: max(offset, 0)})
}

// Stats godoc
//
//	@Summary		File statistics
//	@Description	With fileId, returns that file's links and recent accesses. Without it, returns totals over all live files.
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			fileId	query		string	false	"File ID"
//	@Success		200		{object}	response.Envelope{data=share.FileStats}
//	@Failure		401		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Router			/admin/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("fileId"); id != "" {
		stats, err := h.files.Stats(r.Context(), id)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.OK(w, "", stats)
		return
	}

	sum, err := h.files.Summary(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.OK(w, "", summaryData{Summary: sum, TotalSizeHuman: humanize.Bytes(uint64(sum.TotalSize))})
}

// Cleanup godoc
//
//	@Summary		Clean expired files
//	@Description	Soft-deletes every file past its expiry and reports how many were affected.
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=cleanupData}
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/admin/cleanup [post]
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.files.CleanExpired(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.OK(w, "expired files cleaned", cleanupData{Expired: n})
}

// Reclaim godoc
//
//	@Summary		Reclaim storage
//	@Description	Deletes the stored bytes of cleaned files from their backends.
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=reclaimData}
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/admin/reclaim [post]
func (h *Handler) Reclaim(w http.ResponseWriter, r *http.Request) {
	n, err := h.files.Reclaim(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.OK(w, "storage reclaimed", reclaimData{Reclaimed: n})
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func maskSecrets(s *settings.Settings) *settings.Settings {
	out := s.Clone()
	for b, c := range out.Backends {
		if c.AccessKeySecret != "" {
			c.AccessKeySecret = secretMask
			out.Backends[b] = c
		}
	}
	return out
}

func restoreSecret(in, stored storage.Credentials) storage.Credentials {
	if in.AccessKeySecret == secretMask {
		in.AccessKeySecret = stored.AccessKeySecret
	}
	return in
}
