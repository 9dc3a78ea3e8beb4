// Package evidence stores dispute evidence uploads and serves them back
// by stable URL.
//
// Uploads are sniffed, not trusted: the content type comes from the
// bytes, and anything outside the allowed image and video formats is
// rejected. Per-dispute evidence counts are enforced by the dispute
// engine at filing time; this package only enforces per-file limits.
package evidence

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

var (
	ErrNotFound        = errors.New("evidence not found")
	ErrUnsupportedType = errors.New("unsupported evidence format")
	ErrTooLarge        = errors.New("evidence file too large")
	ErrEmpty           = errors.New("evidence file is empty")
)

// Size limits per file.
const (
	MaxImageBytes = 5 << 20  // 5 MiB
	MaxVideoBytes = 50 << 20 // 50 MiB
)

// Kind classifies an upload by its sniffed content type.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

var videoTypes = map[string]bool{
	"video/mp4":  true,
	"video/webm": true,
}

// File is a stored evidence blob.
type File struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Kind        Kind      `json:"kind"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedBy  string    `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists evidence blobs.
type Store interface {
	Put(ctx context.Context, f *File, content []byte) error
	Get(ctx context.Context, id string) (*File, []byte, error)
}

// Service implements evidence upload rules.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates an evidence service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Upload validates and stores an evidence file, returning its record.
// The ID is content-addressed so re-uploading the same bytes is a no-op.
func (s *Service) Upload(ctx context.Context, uploadedBy, filename string, content []byte) (*File, error) {
	if len(content) == 0 {
		return nil, ErrEmpty
	}

	contentType := sniffContentType(content)
	var kind Kind
	var limit int64
	switch {
	case imageTypes[contentType]:
		kind, limit = KindImage, MaxImageBytes
	case videoTypes[contentType]:
		kind, limit = KindVideo, MaxVideoBytes
	default:
		return nil, ErrUnsupportedType
	}

	if int64(len(content)) > limit {
		return nil, ErrTooLarge
	}

	sum := sha256.Sum256(content)
	f := &File{
		ID:          "ev_" + hex.EncodeToString(sum[:16]),
		Filename:    filename,
		ContentType: contentType,
		Kind:        kind,
		SizeBytes:   int64(len(content)),
		UploadedBy:  uploadedBy,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Put(ctx, f, content); err != nil {
		return nil, err
	}
	return f, nil
}

// Get returns an evidence record and its content.
func (s *Service) Get(ctx context.Context, id string) (*File, []byte, error) {
	return s.store.Get(ctx, id)
}

// URL returns the stable serving path for an evidence ID.
func URL(id string) string {
	return "/v1/evidence/" + id
}

// sniffContentType detects the content type from the leading bytes.
// http.DetectContentType covers jpeg/png/webp/mp4; webm needs its own check.
func sniffContentType(content []byte) string {
	if len(content) >= 4 && bytes.Equal(content[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		return "video/webm"
	}
	return http.DetectContentType(content)
}
