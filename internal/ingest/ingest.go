// Package ingest turns uploaded files into stored, deduplicated image records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/notes-bin/imghost/internal/auth"
	"github.com/notes-bin/imghost/internal/config"
	"github.com/notes-bin/imghost/internal/digest"
	"github.com/notes-bin/imghost/internal/imaging"
	"github.com/notes-bin/imghost/internal/model"
	"github.com/notes-bin/imghost/internal/repository"
	"github.com/notes-bin/imghost/internal/storage"
)

// maxPathAttempts bounds retries when a freshly generated storage key is already taken.
const maxPathAttempts = 3

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imghost_uploads_total",
		Help: "Uploaded files by outcome.",
	}, []string{"result"})
	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imghost_upload_bytes_total",
		Help: "Bytes written to payload storage by uploads.",
	})
)

type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Uploader describes who is uploading, as decided by the authorization gate.
type Uploader struct {
	Decision auth.Decision
	IP       string
	BaseURL  string
}

type Result struct {
	Filename   string  `json:"filename"`
	URL        string  `json:"url"`
	Size       float64 `json:"size"`
	Dimensions string  `json:"dimensions"`
	Duplicate  bool    `json:"duplicate"`
}

type Batch struct {
	Results []Result `json:"results"`
	Errors  []string `json:"errors,omitempty"`
}

// OK reports whether at least one file made it.
func (b *Batch) OK() bool {
	return len(b.Results) > 0
}

type Pipeline struct {
	repo       *repository.Repository
	tokens     *auth.Registry
	cfg        *config.Config
	transcoder *imaging.Transcoder
	clock      model.Clock
}

func New(repo *repository.Repository, tokens *auth.Registry, cfg *config.Config, clock model.Clock) *Pipeline {
	p := &Pipeline{repo: repo, tokens: tokens, cfg: cfg, clock: clock}
	if cfg.Compression.Enabled {
		p.transcoder = imaging.NewTranscoder(cfg.Compression.Quality, cfg.Compression.MaxDimension)
		p.transcoder.MaxPixels = cfg.Compression.MaxPixels
	}
	return p
}

// Ingest processes every file independently; one failure never aborts the others.
// The caller must have passed the upload gate already.
func (p *Pipeline) Ingest(ctx context.Context, files []File, up Uploader) *Batch {
	batch := &Batch{Results: []Result{}}
	for _, f := range files {
		res, err := p.ingestOne(ctx, f, up)
		if err != nil {
			uploadsTotal.WithLabelValues(outcome(err)).Inc()
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %s", f.Name, p.reason(err)))
			continue
		}
		if res.Duplicate {
			uploadsTotal.WithLabelValues("duplicate").Inc()
		} else {
			uploadsTotal.WithLabelValues("stored").Inc()
		}
		batch.Results = append(batch.Results, *res)
	}
	return batch
}

func (p *Pipeline) ingestOne(ctx context.Context, f File, up Uploader) (*Result, error) {
	if !p.cfg.AllowsType(f.MimeType) {
		return nil, model.ErrInvalidFileType
	}
	if int64(len(f.Data)) > p.cfg.MaxUploadSize {
		return nil, model.ErrFileTooLarge
	}

	sum := digest.Sum(f.Data)
	existing, err := p.repo.FindByHash(ctx, sum)
	if err == nil {
		return duplicate(f.Name, existing, up.BaseURL), nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}

	payload, width, height, mimeType, ext, err := p.prepare(f)
	if err != nil {
		return nil, err
	}

	now := p.clock.Now().UTC()
	img := &model.Image{
		ID:               uuid.NewString(),
		OriginalFilename: f.Name,
		FileSize:         int64(len(payload)),
		ContentHash:      sum,
		Width:            width,
		Height:           height,
		MimeType:         mimeType,
		UploaderIP:       up.IP,
		OwnerUser:        up.Decision.Owner(),
		CreatedAt:        now,
	}
	if !up.Decision.Authenticated() {
		img.MarkTemporary()
	}

	for attempt := 1; ; attempt++ {
		img.StoragePath = storage.NewKey(now, ext)
		err = p.repo.Create(ctx, img, payload)
		if !errors.Is(err, model.ErrPathConflict) || attempt == maxPathAttempts {
			break
		}
		slog.Warn("Storage path taken, retrying", "path", img.StoragePath, "attempt", attempt)
	}

	switch {
	case err == nil:
	case errors.Is(err, model.ErrDuplicateHash):
		// 并发上传了相同内容，以胜出者的记录为准
		winner, findErr := p.repo.FindByHash(ctx, sum)
		if findErr != nil {
			return nil, fmt.Errorf("dedup after race: %w", findErr)
		}
		return duplicate(f.Name, winner, up.BaseURL), nil
	default:
		return nil, err
	}

	uploadBytesTotal.Add(float64(img.FileSize))
	if up.Decision.Token != nil {
		p.tokens.RecordUse(ctx, up.Decision.Token.Token)
	}
	slog.Info("Image stored", "image_id", img.ID, "path", img.StoragePath, "size", img.FileSize, "temporary", img.IsTemporary)

	return &Result{
		Filename:   f.Name,
		URL:        img.URL(up.BaseURL),
		Size:       img.SizeKB(),
		Dimensions: img.Dimensions(),
	}, nil
}

// prepare returns the bytes to store. With compression off the original bytes
// pass through and only the header is probed; the stored type follows the
// probed format, not the declared one.
func (p *Pipeline) prepare(f File) (payload []byte, width, height int, mimeType, ext string, err error) {
	if p.transcoder != nil {
		res, err := p.transcoder.Transcode(f.Data, f.MimeType)
		if err != nil {
			return nil, 0, 0, "", "", err
		}
		return res.Data, res.Width, res.Height, res.MimeType, res.Ext, nil
	}

	width, height, format, err := imaging.Probe(f.Data)
	if err != nil {
		return nil, 0, 0, "", "", err
	}
	return f.Data, width, height, "image/" + format, formatExt(format), nil
}

func formatExt(format string) string {
	if format == "jpeg" {
		return ".jpg"
	}
	return "." + format
}

func duplicate(name string, img *model.Image, base string) *Result {
	return &Result{
		Filename:   name,
		URL:        img.URL(base),
		Size:       img.SizeKB(),
		Dimensions: img.Dimensions(),
		Duplicate:  true,
	}
}

// reason renders the per-file error string shown to clients. Unexpected
// failures are logged and reported generically.
func (p *Pipeline) reason(err error) string {
	var perr *imaging.ProcessingError
	switch {
	case errors.Is(err, model.ErrInvalidFileType):
		return "Invalid file type"
	case errors.Is(err, model.ErrFileTooLarge):
		return fmt.Sprintf("File too large (max %gMB)", float64(p.cfg.MaxUploadSize)/(1024*1024))
	case errors.As(err, &perr):
		return "Image processing failed: " + perr.Reason
	default:
		slog.Error("Upload failed", "error", err)
		return "Storage write failed"
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidFileType), errors.Is(err, model.ErrFileTooLarge):
		return "rejected"
	case errors.Is(err, model.ErrImageProcessing):
		return "invalid_image"
	default:
		return "failed"
	}
}
