// Package media stores evidence images attached to guided flows. Files are
// kept on disk under a per-document directory until the finished document is
// produced, then swept by the cleanup pass.
package media

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sindicoapp/sindico/internal/models"
)

// DefaultMaxAge is how long stored image batches are kept before the
// cleanup pass removes them.
const DefaultMaxAge = 24 * time.Hour

var allowedContentTypeRe = regexp.MustCompile(`^image/(jpeg|jpg|png)$`)

// Upload is one incoming file from a multipart request.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Data        io.Reader
}

// RejectedFile records why an individual file was not stored.
type RejectedFile struct {
	Name   string `json:"nome"`
	Reason string `json:"motivo"`
}

// Opts holds configuration for the upload service.
type Opts struct {
	MaxImages int
	MaxBytes  int64
}

// Option configures Opts.
type Option func(*Opts)

// WithMaxImages overrides the per-batch file cap.
func WithMaxImages(n int) Option {
	return func(o *Opts) { o.MaxImages = n }
}

// WithMaxBytes overrides the per-file size cap.
func WithMaxBytes(n int64) Option {
	return func(o *Opts) { o.MaxBytes = n }
}

// Service validates and stores uploaded images.
type Service struct {
	baseDir   string
	maxImages int
	maxBytes  int64
}

// NewService creates an upload service rooted at baseDir. The directory is
// created when absent.
func NewService(baseDir string, opts ...Option) (*Service, error) {
	o := Opts{MaxImages: models.DefaultMaxImages, MaxBytes: models.MaxImageBytes}
	for _, opt := range opts {
		opt(&o)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("NewService: failed to create %s: %w", baseDir, err)
	}
	return &Service{baseDir: baseDir, maxImages: o.MaxImages, maxBytes: o.MaxBytes}, nil
}

// Store writes a batch of uploads under the given document id. A batch
// larger than the cap is rejected whole with models.ErrTooManyImages.
// Individual files with an unsupported type or over the size cap are
// skipped and reported in the rejected list while the rest are stored.
func (s *Service) Store(documentID string, uploads []Upload) (*models.ImageSet, []RejectedFile, error) {
	if documentID == "" {
		return nil, nil, fmt.Errorf("Service.Store: document id is required")
	}
	if len(uploads) > s.maxImages {
		return nil, nil, models.ErrTooManyImages
	}

	dir := filepath.Join(s.baseDir, documentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("Service.Store: failed to create %s: %w", dir, err)
	}

	set := &models.ImageSet{DocumentID: documentID}
	var rejected []RejectedFile

	for i, up := range uploads {
		if err := s.validate(up); err != nil {
			slog.Warn("Service.Store: rejecting file", "documentID", documentID, "name", up.Name, "error", err)
			rejected = append(rejected, RejectedFile{Name: up.Name, Reason: err.Error()})
			continue
		}

		name := fmt.Sprintf("img_%d_%s%s", i, time.Now().Format("20060102150405"), extensionFor(up))
		path := filepath.Join(dir, name)
		size, err := writeFile(path, up.Data, s.maxBytes)
		if err != nil {
			if err == models.ErrImageTooLarge {
				rejected = append(rejected, RejectedFile{Name: up.Name, Reason: err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("Service.Store: failed to write %s: %w", path, err)
		}

		set.Images = append(set.Images, models.ImageDescriptor{
			ID:          uuid.NewString(),
			Name:        up.Name,
			Size:        size,
			ContentType: up.ContentType,
			Path:        path,
		})
	}

	set.Total = len(set.Images)
	slog.Info("Service.Store: batch stored", "documentID", documentID, "stored", set.Total, "rejected", len(rejected))
	return set, rejected, nil
}

// Remove deletes the stored batch for a document.
func (s *Service) Remove(documentID string) error {
	if documentID == "" {
		return fmt.Errorf("Service.Remove: document id is required")
	}
	dir := filepath.Join(s.baseDir, documentID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("Service.Remove: %w", err)
	}
	return nil
}

// RemoveOlderThan sweeps batches whose directory has not been modified for
// maxAge. It returns how many were removed.
func (s *Service) RemoveOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, fmt.Errorf("Service.RemoveOlderThan: %w", err)
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(s.baseDir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			slog.Error("Service.RemoveOlderThan: failed to remove batch", "dir", dir, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Service.RemoveOlderThan: old batches removed", "count", removed)
	}
	return removed, nil
}

func (s *Service) validate(up Upload) error {
	if !allowedContentTypeRe.MatchString(strings.ToLower(up.ContentType)) && !hasAllowedExtension(up.Name) {
		return models.ErrUnsupportedImage
	}
	if up.Size > s.maxBytes {
		return models.ErrImageTooLarge
	}
	return nil
}

func hasAllowedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func extensionFor(up Upload) string {
	if ext := strings.ToLower(filepath.Ext(up.Name)); ext != "" {
		return ext
	}
	if strings.Contains(strings.ToLower(up.ContentType), "png") {
		return ".png"
	}
	return ".jpg"
}

// writeFile copies the upload to disk, enforcing the size cap even when the
// declared size lied. An oversized file is removed and reported.
func writeFile(path string, r io.Reader, maxBytes int64) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	written, err := io.Copy(f, io.LimitReader(r, maxBytes+1))
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	if written > maxBytes {
		os.Remove(path)
		return 0, models.ErrImageTooLarge
	}
	return written, nil
}
