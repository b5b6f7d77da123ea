package files

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/quickshare/service/internal/apperr"
	"github.com/quickshare/service/internal/response"
)

// previewMaxAge is the Cache-Control max-age of preview responses.
const previewMaxAge = time.Hour

// HandlerConfig tunes the HTTP surface.
type HandlerConfig struct {
	// TempDir receives request bodies before they are handed to a backend.
	TempDir string
	// Redirect sends downloads to a signed backend URL when the backend supports it.
	Redirect     bool
	SignedURLTTL time.Duration
}

// Handler holds HTTP handlers for upload and download endpoints.
type Handler struct {
	svc *Service
	cfg HandlerConfig
}

// NewHandler creates a new files Handler.
func NewHandler(svc *Service, cfg HandlerConfig) *Handler {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = time.Hour
	}
	return &Handler{svc: svc, cfg: cfg}
}

type uploadData struct {
	FileID         string    `json:"fileId"         example:"3f2a9c0e8b7d4e6fa1c2b3d4e5f60718"`
	ShareCode      string    `json:"shareCode"      example:"9f86d081884c7d65"`
	AccessCode     string    `json:"accessCode"     example:"K7Q2ZP"`
	FileName       string    `json:"fileName"       example:"report.pdf"`
	FileSize       int64     `json:"fileSize"       example:"2097152"`
	FileSizeHuman  string    `json:"fileSizeHuman"  example:"2.1 MB"`
	DownloadURL    string    `json:"downloadUrl"    example:"/download/9f86d081884c7d65"`
	StorageBackend string    `json:"storageBackend" example:"local"`
	ExpireTime     time.Time `json:"expireTime"`
}

type infoRequest struct {
	AccessCode string `json:"accessCode" example:"K7Q2ZP"`
}

type infoData struct {
	*Descriptor
	FileSizeHuman string `json:"fileSizeHuman" example:"2.1 MB"`
	IsImage       bool   `json:"isImage"`
}

// Upload godoc
//
//	@Summary		Upload a file
//	@Description	Stores the file on the active backend (falling back to local disk) and returns its share and access codes.
//	@Tags			files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"File to share"
//	@Param			expireDays	formData	int		false	"Days until the link expires"
//	@Success		200			{object}	response.Envelope{data=uploadData}
//	@Failure		400			{object}	response.Envelope
//	@Failure		413			{object}	response.Envelope
//	@Failure		500			{object}	response.Envelope
//	@Router			/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	limit, err := h.svc.MaxFileSize(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	in, err := h.spool(r, limit)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	res, err := h.svc.Upload(r.Context(), *in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.OK(w, "file uploaded", uploadData{
		FileID:         res.FileID,
		ShareCode:      res.ShareCode,
		AccessCode:     res.AccessCode,
		FileName:       res.OriginalName,
		FileSize:       res.Size,
		FileSizeHuman:  humanize.Bytes(uint64(res.Size)),
		DownloadURL:    "/download/" + res.ShareCode,
		StorageBackend: string(res.Backend),
		ExpireTime:     res.ExpireTime,
	})
}

// spool streams the multipart body to a temp file, reading at most limit+1
// bytes of the file part so an oversized upload is detected without storing it.
func (h *Handler) spool(r *http.Request, limit int64) (*UploadInput, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperr.Validation("expected a multipart/form-data body")
	}

	in := &UploadInput{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.cleanup(in)
			return nil, apperr.Validation("malformed multipart body")
		}

		switch part.FormName() {
		case "file":
			if in.TempPath != "" {
				part.Close()
				h.cleanup(in)
				return nil, apperr.Validation("only one file may be uploaded per request")
			}
			if err := h.spoolFile(part, limit, in); err != nil {
				part.Close()
				h.cleanup(in)
				return nil, err
			}
		case "expireDays":
			raw, _ := io.ReadAll(io.LimitReader(part, 16))
			if v := strings.TrimSpace(string(raw)); v != "" {
				days, err := strconv.Atoi(v)
				if err != nil {
					part.Close()
					h.cleanup(in)
					return nil, apperr.Validation("expireDays must be an integer")
				}
				in.ExpireDays = days
			}
		}
		part.Close()
	}

	if in.TempPath == "" {
		return nil, apperr.Validation("no file uploaded")
	}
	return in, nil
}

func (h *Handler) spoolFile(part *multipart.Part, limit int64, in *UploadInput) error {
	in.OriginalName = part.FileName()
	in.MimeType = part.Header.Get("Content-Type")

	f, err := os.CreateTemp(h.cfg.TempDir, "upload-*")
	if err != nil {
		return apperr.Internal(fmt.Errorf("create temp file: %w", err))
	}
	in.TempPath = f.Name()

	n, err := io.Copy(f, io.LimitReader(part, limit+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return apperr.Validation("upload interrupted")
	}
	in.Size = n
	return nil
}

func (h *Handler) cleanup(in *UploadInput) {
	if in.TempPath != "" {
		_ = os.Remove(in.TempPath)
	}
}

// Info godoc
//
//	@Summary		Get file info
//	@Description	Verifies the access code and returns file metadata without counting a download.
//	@Tags			download
//	@Accept			json
//	@Produce		json
//	@Param			shareCode	path		string		true	"Share code"
//	@Param			request		body		infoRequest	true	"Access code"
//	@Success		200			{object}	response.Envelope{data=infoData}
//	@Failure		401			{object}	response.Envelope
//	@Failure		404			{object}	response.Envelope
//	@Failure		410			{object}	response.Envelope
//	@Router			/download/info/{shareCode} [post]
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	var req infoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	d, err := h.svc.Inspect(r.Context(), chi.URLParam(r, "shareCode"), req.AccessCode)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.OK(w, "", infoData{
		Descriptor:    d,
		FileSizeHuman: humanize.Bytes(uint64(d.Size)),
		IsImage:       d.IsImage(),
	})
}

// Download godoc
//
//	@Summary		Download a file
//	@Description	Verifies the access code, records the download and streams the bytes, or redirects to a signed backend URL when enabled.
//	@Tags			download
//	@Produce		octet-stream
//	@Param			shareCode	path		string	true	"Share code"
//	@Param			accessCode	query		string	true	"Access code"
//	@Success		200
//	@Success		302
//	@Failure		401			{object}	response.Envelope
//	@Failure		404			{object}	response.Envelope
//	@Failure		410			{object}	response.Envelope
//	@Failure		500			{object}	response.Envelope
//	@Router			/download/file/{shareCode} [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.ResolveForDownload(r.Context(),
		chi.URLParam(r, "shareCode"),
		r.URL.Query().Get("accessCode"),
		Client{Addr: remoteHost(r), Agent: r.UserAgent()},
	)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	if h.cfg.Redirect {
		u, err := h.svc.SignedURL(r.Context(), d, h.cfg.SignedURLTTL)
		if err == nil {
			http.Redirect(w, r, u, http.StatusFound)
			return
		}
		if !apperr.Is(err, apperr.KindUnsupported) {
			log.Warn().Err(err).Str("file_id", d.FileID).Msg("signed url failed, proxying download")
		}
	}

	obj, err := h.svc.Open(r.Context(), d)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.OriginalName}))
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	h.stream(w, obj.Body, d)
}

// Preview godoc
//
//	@Summary		Preview an image
//	@Description	Streams an image inline. Previews are not counted as downloads.
//	@Tags			download
//	@Produce		image/png
//	@Param			shareCode	path		string	true	"Share code"
//	@Param			accessCode	query		string	true	"Access code"
//	@Success		200
//	@Failure		403			{object}	response.Envelope
//	@Failure		404			{object}	response.Envelope
//	@Failure		410			{object}	response.Envelope
//	@Router			/download/preview/{shareCode} [get]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	d, obj, err := h.svc.Preview(r.Context(), chi.URLParam(r, "shareCode"), r.URL.Query().Get("accessCode"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": d.OriginalName}))
	w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(previewMaxAge.Seconds())))
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	h.stream(w, obj.Body, d)
}

// stream copies body to w. Headers are already sent, so a failure can only be logged.
func (h *Handler) stream(w io.Writer, body io.Reader, d *Descriptor) {
	if n, err := io.Copy(w, body); err != nil {
		log.Warn().Err(err).Str("file_id", d.FileID).Int64("written", n).Msg("stream interrupted")
	}
}

// remoteHost drops the port from RemoteAddr. chi's RealIP has already
// replaced it with the forwarded address when one was sent.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
