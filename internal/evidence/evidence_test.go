package evidence

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// Minimal valid headers for sniffing.
var (
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	pngHeader  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 13}
	webmHeader = []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01, 0x02, 0x03, 0x04}
)

func TestUploadAcceptsKnownFormats(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name    string
		content []byte
		kind    Kind
	}{
		{"jpeg", jpegHeader, KindImage},
		{"png", pngHeader, KindImage},
		{"webm", webmHeader, KindVideo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := svc.Upload(ctx, "user_a", tt.name, tt.content)
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			if f.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, f.Kind)
			}
		})
	}
}

func TestUploadRejectsUnknownFormat(t *testing.T) {
	svc := NewService(NewMemoryStore())

	_, err := svc.Upload(context.Background(), "user_a", "notes.txt", []byte("plain text evidence"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestUploadRejectsOversizedImage(t *testing.T) {
	svc := NewService(NewMemoryStore())

	big := make([]byte, MaxImageBytes+1)
	copy(big, jpegHeader)

	_, err := svc.Upload(context.Background(), "user_a", "huge.jpg", big)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	svc := NewService(NewMemoryStore())

	_, err := svc.Upload(context.Background(), "user_a", "empty.png", nil)
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestUploadIsContentAddressed(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	first, err := svc.Upload(ctx, "user_a", "photo.jpg", jpegHeader)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	second, err := svc.Upload(ctx, "user_b", "same-photo.jpg", jpegHeader)
	if err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("identical content produced different IDs: %s vs %s", first.ID, second.ID)
	}

	_, content, err := svc.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(content, jpegHeader) {
		t.Errorf("stored content does not match upload")
	}
}
