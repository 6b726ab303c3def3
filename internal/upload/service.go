// Package upload stores question and answer attachments on local disk.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrEmptyFile       = errors.New("empty file")
	ErrNotOwned        = errors.New("url is not a stored upload")
)

var allowedExt = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".svg":  true,
	".pdf":  true,
}

type Config struct {
	Dir      string
	BaseURL  string
	MaxBytes int64
}

type Service struct {
	dir      string
	baseURL  string
	maxBytes int64
}

func NewService(cfg Config) *Service {
	if strings.TrimSpace(cfg.Dir) == "" {
		cfg.Dir = "uploads"
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "/uploads"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5 << 20
	}
	return &Service{
		dir:      cfg.Dir,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		maxBytes: cfg.MaxBytes,
	}
}

func (s *Service) Dir() string {
	return s.dir
}

// Save writes r under a random name and returns the public URL of the file.
func (s *Service) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := uuid.NewString() + ext
	full := filepath.Join(s.dir, name)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		err = fmt.Errorf("write upload file: %w", err)
	case closeErr != nil:
		err = fmt.Errorf("close upload file: %w", closeErr)
	case n == 0:
		err = ErrEmptyFile
	case n > s.maxBytes:
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		return "", err
	}

	return path.Join(s.baseURL, name), nil
}

// Remove deletes a file previously returned by Save. A file that is already
// gone is not an error.
func (s *Service) Remove(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrNotOwned, url)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	return nil
}
