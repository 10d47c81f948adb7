package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidJobID = errors.New("invalid job id")
	ErrFileNotFound = errors.New("upload not found")
)

// FileStore keeps uploaded CSV files on local disk, one file per job.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Dir() string { return s.dir }

// Save writes r to the job's file. The file only becomes visible once fully written.
func (s *FileStore) Save(ctx context.Context, jobID string, r io.Reader) error {
	dest, err := s.path(jobID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+jobID+"-*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return fmt.Errorf("write upload %s: %w", jobID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close upload %s: %w", jobID, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("store upload %s: %w", jobID, err)
	}
	return nil
}

// Open returns a fresh stream over the job's file. Callers must close it.
func (s *FileStore) Open(ctx context.Context, jobID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(jobID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, jobID)
		}
		return nil, fmt.Errorf("open upload %s: %w", jobID, err)
	}
	return f, nil
}

func (s *FileStore) Remove(ctx context.Context, jobID string) error {
	p, err := s.path(jobID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload %s: %w", jobID, err)
	}
	return nil
}

func (s *FileStore) path(jobID string) (string, error) {
	if jobID == "" || jobID == "." || jobID == ".." || strings.ContainsAny(jobID, `/\`) || strings.ContainsRune(jobID, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	return filepath.Join(s.dir, jobID+".csv"), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
