package api

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/notes-bin/imghost/internal/retrieval"
)

//go:embed templates/gallery.html
var templateFS embed.FS

var galleryTmpl = template.Must(template.ParseFS(templateFS, "templates/gallery.html"))

type galleryItem struct {
	URL        string
	Filename   string
	Dimensions string
	Size       float64
	Views      int64
	Temporary  bool
	ExpiresAt  string
}

type galleryData struct {
	Page  *retrieval.Page
	Items []galleryItem
	Token string
}

// Gallery renders one page of thumbnails, gated like the JSON listing.
func (h *Handler) Gallery(w http.ResponseWriter, r *http.Request) {
	creds := h.credentials(r)
	if _, err := h.app.Gate.ForListing(r.Context(), creds); err != nil {
		status, message := classify(err)
		http.Error(w, message, status)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	p, err := h.app.Gateway.List(r.Context(), page, retrieval.GalleryPerPage)
	if err != nil {
		slog.Error("Failed to list images", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	base := h.baseURL(r)
	data := galleryData{Page: p, Token: creds.Token, Items: make([]galleryItem, 0, len(p.Images))}
	for _, img := range p.Images {
		item := galleryItem{
			URL:        img.URL(base),
			Filename:   img.OriginalFilename,
			Dimensions: img.Dimensions(),
			Size:       img.SizeKB(),
			Views:      img.ViewCount,
			Temporary:  img.IsTemporary,
		}
		if img.ExpiresAt != nil {
			item.ExpiresAt = img.ExpiresAt.Format("2006-01-02 15:04 MST")
		}
		data.Items = append(data.Items, item)
	}

	var buf bytes.Buffer
	if err := galleryTmpl.Execute(&buf, data); err != nil {
		slog.Error("Failed to render gallery", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}
