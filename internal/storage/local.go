// Package storage keeps uploaded claim attachments on local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrInvalidRef is returned for references that do not point into the store
var ErrInvalidRef = errors.New("invalid storage reference")

// Stored describes a file written to the store
type Stored struct {
	Ref      string
	Path     string
	MimeType string
	Size     int64
}

// LocalStore writes attachments under a root directory, one folder per claim
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// Save writes content for a claim and returns its reference. The file name
// on disk is generated; only the extension of the original name is kept.
func (s *LocalStore) Save(ctx context.Context, claimID, fileName string, content []byte) (*Stored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if claimID == "" || strings.ContainsAny(claimID, `/\`) || claimID == "." || claimID == ".." {
		return nil, fmt.Errorf("%w: claim id %q", ErrInvalidRef, claimID)
	}

	dir := filepath.Join(s.root, claimID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create claim directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	ref := claimID + "/" + uuid.New().String() + ext
	path := filepath.Join(s.root, filepath.FromSlash(ref))

	// write to a temp file first so readers never see a partial attachment
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create storage file: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to save file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to save file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	return &Stored{
		Ref:      ref,
		Path:     path,
		MimeType: mimetype.Detect(content).String(),
		Size:     int64(len(content)),
	}, nil
}

// Path resolves a reference to its file path, rejecting anything that
// would escape the root.
func (s *LocalStore) Path(ref string) (string, error) {
	if ref == "" || strings.Contains(ref, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	path := filepath.Join(s.root, filepath.FromSlash(ref))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return path, nil
}

// Open returns the stored bytes for a reference
func (s *LocalStore) Open(ref string) ([]byte, error) {
	path, err := s.Path(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
