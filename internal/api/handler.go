package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/notes-bin/imghost/internal/app"
	"github.com/notes-bin/imghost/internal/auth"
	"github.com/notes-bin/imghost/internal/config"
	"github.com/notes-bin/imghost/internal/ingest"
	"github.com/notes-bin/imghost/internal/model"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// multipartMemory is how much of a multipart body is kept in memory before spilling to temp files.
const multipartMemory = 32 << 20

type Handler struct {
	config *config.Config
	app    *app.App
}

func NewHandler(a *app.App) *Handler {
	return &Handler{config: a.Config, app: a}
}

func SetupRouter(a *app.App) http.Handler {
	h := NewHandler(a)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(slog.Default()))
	r.Use(MetricsMiddleware)

	r.Get("/health/live", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(h.config.RateLimit.Requests, h.config.RateLimit.Duration))
		r.Use(h.SessionMiddleware)

		r.Post("/api/upload", h.UploadImages)
		r.Get("/api/images", h.ListImages)
		for _, pattern := range []string{"/api/images/{id}/delete", "/api/images/{id}/delete/"} {
			r.Post(pattern, h.DeleteImage)
			r.Delete(pattern, h.DeleteImage)
		}
		r.Get("/gallery", h.Gallery)

		// 图片访问，路径即凭证，无需认证
		r.Get(model.ServePrefix+"*", h.ServeImage)
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) UploadImages(w http.ResponseWriter, r *http.Request) {
	// 会话、请求头或查询参数带有凭证时，先认证再读取请求体
	var decision auth.Decision
	early := h.requestCredentials(r)
	gated := early.User != nil || early.Token != ""
	if gated {
		var err error
		if decision, err = h.app.Gate.ForUpload(r.Context(), early); err != nil {
			respondFailure(w, err)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxRequestSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	// 表单字段里的 token 只能在解析后校验，但仍早于处理任何文件
	if !gated {
		var err error
		if decision, err = h.app.Gate.ForUpload(r.Context(), h.credentials(r)); err != nil {
			respondFailure(w, err)
			return
		}
	}

	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		respondError(w, http.StatusBadRequest, "No image file provided")
		return
	}

	files := make([]ingest.File, 0, len(headers))
	var readErrors []string
	for _, fh := range headers {
		data, err := h.readPart(fh)
		if err != nil {
			slog.Warn("Failed to read upload part", "filename", fh.Filename, "error", err)
			readErrors = append(readErrors, fmt.Sprintf("%s: Failed to read file", fh.Filename))
			continue
		}
		files = append(files, ingest.File{Name: fh.Filename, MimeType: fh.Header.Get("Content-Type"), Data: data})
	}

	batch := h.app.Ingest.Ingest(r.Context(), files, ingest.Uploader{
		Decision: decision,
		IP:       clientIP(r),
		BaseURL:  h.baseURL(r),
	})
	batch.Errors = append(readErrors, batch.Errors...)

	status := http.StatusOK
	if !batch.OK() {
		status = http.StatusBadRequest
	}
	respondJSON(w, status, batch)
}

// readPart reads at most one byte past the upload limit so oversize files are
// detected without buffering them whole.
func (h *Handler) readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, h.config.MaxUploadSize+1))
}

type imageItem struct {
	ID         string     `json:"id"`
	Filename   string     `json:"filename"`
	URL        string     `json:"url"`
	Size       float64    `json:"size"`
	Dimensions string     `json:"dimensions"`
	Views      int64      `json:"views"`
	CreatedAt  time.Time  `json:"created_at"`
	Temporary  bool       `json:"temporary"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
}

func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	if _, err := h.app.Gate.ForListing(r.Context(), h.credentials(r)); err != nil {
		respondFailure(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	p, err := h.app.Gateway.List(r.Context(), page, perPage)
	if err != nil {
		respondFailure(w, err)
		return
	}

	base := h.baseURL(r)
	items := make([]imageItem, 0, len(p.Images))
	for _, img := range p.Images {
		items = append(items, imageItem{
			ID:         img.ID,
			Filename:   img.OriginalFilename,
			URL:        img.URL(base),
			Size:       img.SizeKB(),
			Dimensions: img.Dimensions(),
			Views:      img.ViewCount,
			CreatedAt:  img.CreatedAt,
			Temporary:  img.IsTemporary,
			ExpiresAt:  img.ExpiresAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"images":     items,
		"pagination": pagination{Page: p.Page, PerPage: p.PerPage, Total: p.Total, Pages: p.Pages},
	})
}

func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	decision, err := h.app.Gate.ForDelete(r.Context(), h.credentials(r))
	if err != nil {
		respondFailure(w, err)
		return
	}

	imageID := chi.URLParam(r, "id")
	img, err := h.app.Repo.FindByID(r.Context(), imageID)
	if err != nil {
		respondFailure(w, err)
		return
	}
	if !decision.CanDelete(img) {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	res, err := h.app.Delete(r.Context(), imageID)
	if err != nil {
		respondFailure(w, err)
		return
	}
	if !res.Complete() {
		respondJSON(w, http.StatusOK, map[string]string{
			"message": "Image record deleted",
			"warning": "Image file could not be removed",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Image deleted successfully"})
}

func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	img, obj, err := h.app.Gateway.Serve(r.Context(), path)
	if err != nil {
		respondFailure(w, err)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path, obj.ModTime, rs)
		return
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.Warn("Failed to stream image", "path", path, "error", err)
	}
}

// credentials collects the session user and an access token. The token is
// looked up in the X-API-Token header, then the query, then the form body.
// requestCredentials reads what is available without touching the body.
func (h *Handler) requestCredentials(r *http.Request) auth.Credentials {
	token := r.Header.Get("X-API-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return auth.Credentials{User: userFrom(r.Context()), Token: token}
}

// credentials falls back to a form field for POST and DELETE.
func (h *Handler) credentials(r *http.Request) auth.Credentials {
	c := h.requestCredentials(r)
	if c.Token == "" && (r.Method == http.MethodPost || r.Method == http.MethodDelete) {
		c.Token = r.PostFormValue("token")
	}
	return c
}

// baseURL prefers the configured public domain over the request host.
func (h *Handler) baseURL(r *http.Request) string {
	if d := strings.TrimRight(h.config.PublicDomain, "/"); d != "" {
		if strings.Contains(d, "://") {
			return d
		}
		return scheme(r) + "://" + d
	}
	return scheme(r) + "://" + r.Host
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		return proto
	}
	return "http"
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
