// Package blob stores uploaded poster images and returns their public URLs.
package blob

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/config"
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store persists an image and returns the URL it is served from.
type Store interface {
	Save(ctx context.Context, r io.Reader) (string, error)
}

// LocalStore writes files under a directory served by the HTTP layer.
type LocalStore struct {
	dir      string
	baseURL  string
	maxBytes int64
}

func NewLocalStore(cfg config.UploadConfig) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: cfg.Dir, baseURL: cfg.BaseURL, maxBytes: cfg.MaxBytes}, nil
}

// Dir returns the directory files are written to.
func (s *LocalStore) Dir() string { return s.dir }

// Save sniffs the content type from the data itself; the client's declared
// type is not trusted.
func (s *LocalStore) Save(_ context.Context, r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read upload: %w", err)
	}
	ext, ok := extensions[http.DetectContentType(head)]
	if !ok {
		return "", apperr.Validation([]apperr.FieldError{{Field: "poster", Msg: "must be a JPEG, PNG, GIF or WebP image"}})
	}

	name := uuid.New().String() + ext
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(br, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if n > s.maxBytes {
		os.Remove(path)
		return "", apperr.Validation([]apperr.FieldError{{Field: "poster", Msg: fmt.Sprintf("must be at most %d bytes", s.maxBytes)}})
	}
	if n == 0 {
		os.Remove(path)
		return "", apperr.Validation([]apperr.FieldError{{Field: "poster", Msg: "empty file"}})
	}

	return s.baseURL + "/" + name, nil
}
