package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloo-solutions/unirank/internal/storage"
)

// SourceObject identifies one ranking file and the version of its contents.
type SourceObject struct {
	Key      string
	Checksum string
}

// SourceLoader lists and reads ranking files.
type SourceLoader interface {
	Location() string
	List(ctx context.Context) ([]SourceObject, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// DirSource reads *.json ranking files from a local directory.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Location() string {
	return s.dir
}

// List returns the directory's JSON files ordered by name, checksummed with SHA-256.
func (s *DirSource) List(ctx context.Context) ([]SourceObject, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	objects := make([]SourceObject, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(data)
		objects = append(objects, SourceObject{Key: e.Name(), Checksum: hex.EncodeToString(sum[:])})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *DirSource) Read(_ context.Context, key string) ([]byte, error) {
	if key != filepath.Base(key) {
		return nil, fmt.Errorf("invalid source key %q", key)
	}
	return os.ReadFile(filepath.Join(s.dir, key))
}

// ObjectStore is the subset of the S3 client used to read ranking files.
type ObjectStore interface {
	Bucket() string
	ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// BucketSource reads *.json ranking files under a bucket prefix. The object
// ETag serves as checksum.
type BucketSource struct {
	store  ObjectStore
	prefix string
}

func NewBucketSource(store ObjectStore, prefix string) *BucketSource {
	return &BucketSource{store: store, prefix: prefix}
}

func (s *BucketSource) Location() string {
	return "s3://" + s.store.Bucket() + "/" + s.prefix
}

func (s *BucketSource) List(ctx context.Context) ([]SourceObject, error) {
	infos, err := s.store.ListObjects(ctx, s.prefix)
	if err != nil {
		return nil, err
	}

	objects := make([]SourceObject, 0, len(infos))
	for _, info := range infos {
		if !strings.EqualFold(filepath.Ext(info.Key), ".json") {
			continue
		}
		objects = append(objects, SourceObject{Key: info.Key, Checksum: info.ETag})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *BucketSource) Read(ctx context.Context, key string) ([]byte, error) {
	return s.store.GetObject(ctx, key)
}
