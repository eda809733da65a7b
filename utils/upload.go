package utils

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Upload is a request-scoped copy of an uploaded file. Callers must Close it
// on every exit path; Close deletes the file.
type Upload struct {
	Path         string
	OriginalName string
	Size         int64
}

// SaveUpload copies an uploaded part into dir under a random name that keeps
// the original extension.
func SaveUpload(dir string, src io.Reader, header *multipart.FileHeader) (*Upload, error) {
	if header == nil {
		return nil, errors.New("file header is nil")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	name := uuid.NewString() + filepath.Ext(filepath.Base(header.Filename))
	path := filepath.Join(dir, name)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	n, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to store upload %q: %w", header.Filename, err)
	}

	return &Upload{Path: path, OriginalName: header.Filename, Size: n}, nil
}

// Close removes the stored file. Closing twice is harmless.
func (u *Upload) Close() error {
	if u == nil {
		return nil
	}
	if err := os.Remove(u.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove upload: %w", err)
	}
	return nil
}
