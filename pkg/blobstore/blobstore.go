// Package blobstore holds the raw bytes of uploaded patient documents.
// The pipeline only ever needs store-by-key and fetch-by-key; durability
// beyond the local volume is the hosting environment's concern.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrBlobNotFound = errors.New("blob not found")

type Store interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// NewObjectKey builds a collision-free storage key for an upload.
func NewObjectKey(patientUserID uuid.UUID, fileName string) string {
	base := filepath.Base(fileName)
	base = strings.ReplaceAll(base, " ", "_")
	return fmt.Sprintf("%s/%s-%s", patientUserID, uuid.New(), base)
}

// FileStore keeps blobs on the local filesystem under root/bucket/key.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	path := s.path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}

func (s *FileStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(bucket, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return data, err
}

func (s *FileStore) path(bucket, key string) string {
	return filepath.Join(s.root, filepath.Clean(bucket), filepath.Clean(key))
}
