package media

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sindicoapp/sindico/internal/models"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func upload(name, contentType, content string) Upload {
	return Upload{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(content)),
		Data:        strings.NewReader(content),
	}
}

func TestStoreValidBatch(t *testing.T) {
	svc := newTestService(t)

	set, rejected, err := svc.Store("doc1", []Upload{
		upload("foto1.jpg", "image/jpeg", "jpegdata"),
		upload("foto2.png", "image/png", "pngdata"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rejected) != 0 {
		t.Errorf("expected no rejections, got %v", rejected)
	}
	if set.Total != 2 {
		t.Fatalf("expected 2 stored images, got %d", set.Total)
	}
	for _, img := range set.Images {
		if img.ID == "" {
			t.Error("descriptor missing id")
		}
		if _, err := os.Stat(img.Path); err != nil {
			t.Errorf("stored file missing: %v", err)
		}
	}
	if set.Images[0].Name != "foto1.jpg" {
		t.Errorf("original name lost: %q", set.Images[0].Name)
	}
}

func TestStoreRejectsOversizedBatch(t *testing.T) {
	svc := newTestService(t)

	batch := make([]Upload, models.DefaultMaxImages+1)
	for i := range batch {
		batch[i] = upload("foto.jpg", "image/jpeg", "data")
	}
	_, _, err := svc.Store("doc1", batch)
	if !errors.Is(err, models.ErrTooManyImages) {
		t.Fatalf("expected ErrTooManyImages, got %v", err)
	}

	// Nothing from the rejected batch may be stored.
	if entries, _ := os.ReadDir(filepath.Join(svc.baseDir, "doc1")); len(entries) != 0 {
		t.Errorf("expected no files for a rejected batch, found %d", len(entries))
	}
}

func TestStoreRejectsInvalidFilesIndividually(t *testing.T) {
	svc := newTestService(t)

	set, rejected, err := svc.Store("doc1", []Upload{
		upload("foto.jpg", "image/jpeg", "ok"),
		upload("nota.pdf", "application/pdf", "%PDF"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Total != 1 {
		t.Errorf("expected the valid file to be stored, got %d", set.Total)
	}
	if len(rejected) != 1 || rejected[0].Name != "nota.pdf" {
		t.Fatalf("expected nota.pdf to be rejected, got %v", rejected)
	}
	if !strings.Contains(rejected[0].Reason, "unsupported") {
		t.Errorf("unexpected rejection reason: %q", rejected[0].Reason)
	}
}

func TestStoreRejectsFileOverSizeCap(t *testing.T) {
	svc := newTestService(t, WithMaxBytes(8))

	set, rejected, err := svc.Store("doc1", []Upload{
		upload("grande.jpg", "image/jpeg", "0123456789"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Total != 0 {
		t.Errorf("oversized file must not be stored, got %d", set.Total)
	}
	if len(rejected) != 1 {
		t.Fatalf("expected 1 rejection, got %v", rejected)
	}
}

func TestStoreEnforcesSizeCapOnStream(t *testing.T) {
	svc := newTestService(t, WithMaxBytes(8))

	// Declared size fits, actual content does not.
	set, rejected, err := svc.Store("doc1", []Upload{{
		Name:        "mentiroso.jpg",
		ContentType: "image/jpeg",
		Size:        4,
		Data:        bytes.NewReader(bytes.Repeat([]byte("a"), 64)),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Total != 0 || len(rejected) != 1 {
		t.Fatalf("expected stream cap rejection, stored=%d rejected=%v", set.Total, rejected)
	}
}

func TestStoreAcceptsExtensionWhenContentTypeGeneric(t *testing.T) {
	svc := newTestService(t)

	set, rejected, err := svc.Store("doc1", []Upload{
		upload("foto.jpeg", "application/octet-stream", "data"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Total != 1 || len(rejected) != 0 {
		t.Errorf("jpeg extension should be accepted, stored=%d rejected=%v", set.Total, rejected)
	}
}

func TestRemove(t *testing.T) {
	svc := newTestService(t)

	if _, _, err := svc.Store("doc1", []Upload{upload("foto.jpg", "image/jpeg", "data")}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := svc.Remove("doc1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(svc.baseDir, "doc1")); !os.IsNotExist(err) {
		t.Error("batch directory should be gone")
	}
}

func TestRemoveOlderThan(t *testing.T) {
	svc := newTestService(t)

	if _, _, err := svc.Store("velho", []Upload{upload("foto.jpg", "image/jpeg", "data")}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, _, err := svc.Store("novo", []Upload{upload("foto.jpg", "image/jpeg", "data")}); err != nil {
		t.Fatalf("store: %v", err)
	}

	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(svc.baseDir, "velho"), old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := svc.RemoveOlderThan(DefaultMaxAge)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed batch, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(svc.baseDir, "velho")); !os.IsNotExist(err) {
		t.Error("old batch should be removed")
	}
	if _, err := os.Stat(filepath.Join(svc.baseDir, "novo")); err != nil {
		t.Error("recent batch should survive the sweep")
	}
}
