package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrTooLarge        = errors.New("file exceeds the allowed size")
	ErrUnsupportedType = errors.New("unsupported image type")
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Store persists uploaded profile images under generated names. Callers get
// back a URL path reference and never depend on the directory layout.
type Store struct {
	dir      string
	maxBytes int64
}

func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Save validates and writes one multipart file, returning its public
// reference ("/uploads/<name>"). Names are timestamp-prefixed so repeated
// uploads of the same file never collide.
func (s *Store) Save(fh *multipart.FileHeader) (string, error) {
	if fh.Size > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, fh.Size)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if !allowedTypes[http.DetectContentType(head[:n])] {
		return "", ErrUnsupportedType
	}

	name := fmt.Sprintf("%d-%s", time.Now().UnixNano(), sanitize(fh.Filename))
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	if _, err := dst.Write(head[:n]); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	written, err := io.Copy(dst, io.LimitReader(src, s.maxBytes))
	if err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if int64(n)+written > s.maxBytes {
		_ = os.Remove(filepath.Join(s.dir, name))
		return "", ErrTooLarge
	}

	return "/uploads/" + name, nil
}

// Dir returns the directory images are served from.
func (s *Store) Dir() string { return s.dir }

func sanitize(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, " ", "_")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "upload"
	}
	return b.String()
}
