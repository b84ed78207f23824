// Package snapshot is a content-addressed store for pre-mutation remote
// content. Every apply phase records the files it is about to overwrite here,
// keyed by operation id, so a crashed or failed operation leaves enough
// behind to reconstruct what the remote held before.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"scriptsync/internal/fingerprint"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var (
	ErrNotFound    = errors.New("snapshot content not found")
	ErrInvalidHash = errors.New("invalid content hash")
)

// Meta stores metadata about one stored blob.
type Meta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store provides deduplicated blob storage: content files on disk under
// root/<hh>/<rest>, metadata in badger, hot blobs in an LRU cache.
type Store struct {
	root   string
	db     *badger.DB
	cache  *lru.Cache[string, []byte]
	codec  *codec
	logger *zap.Logger
}

// Options configures Store behavior.
type Options struct {
	Root        string // root directory path
	CacheSize   int    // number of blobs to cache
	CompressMin int    // compress blobs at or above this size, 0 = default
}

// New creates a snapshot store backed by db.
func New(db *badger.DB, opts Options, logger *zap.Logger) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	if opts.CacheSize == 0 {
		opts.CacheSize = 256
	}
	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	codec, err := newCodec(opts.CompressMin)
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		root:   opts.Root,
		db:     db,
		cache:  cache,
		codec:  codec,
		logger: logger,
	}, nil
}

// Store saves content and returns its blob hash. Storing existing content is
// a no-op returning the same hash.
func (s *Store) Store(content []byte) (string, error) {
	if content == nil {
		content = []byte{}
	}

	hash := fingerprint.Hash(content)

	exists, err := s.Exists(hash)
	if err != nil {
		return "", fmt.Errorf("checking existence: %w", err)
	}
	if exists {
		return hash, nil
	}

	body, compressed := s.codec.compress(content)

	contentPath := s.contentPath(hash)
	if err := os.MkdirAll(filepath.Dir(contentPath), 0755); err != nil {
		return "", fmt.Errorf("creating content directory: %w", err)
	}
	if err := os.WriteFile(contentPath, body, 0644); err != nil {
		return "", fmt.Errorf("writing content file: %w", err)
	}

	meta := Meta{
		Hash:       hash,
		Size:       int64(len(content)),
		Compressed: compressed,
		CreatedAt:  time.Now(),
	}
	if err := s.storeMeta(meta); err != nil {
		os.Remove(contentPath)
		return "", fmt.Errorf("storing metadata: %w", err)
	}

	s.cache.Add(hash, content)
	return hash, nil
}

// Get retrieves content by hash.
func (s *Store) Get(hash string) ([]byte, error) {
	if !fingerprint.Valid(hash) {
		return nil, ErrInvalidHash
	}

	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	meta, err := s.getMeta(hash)
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(s.contentPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading content: %w", err)
	}

	content := body
	if meta.Compressed {
		content, err = s.codec.decompress(body)
		if err != nil {
			return nil, fmt.Errorf("decompressing content: %w", err)
		}
	}

	if fingerprint.Hash(content) != hash {
		return nil, fmt.Errorf("content hash mismatch for %s", hash)
	}

	s.cache.Add(hash, content)
	return content, nil
}

// Exists checks whether a blob is present.
func (s *Store) Exists(hash string) (bool, error) {
	if !fingerprint.Valid(hash) {
		return false, ErrInvalidHash
	}
	if s.cache.Contains(hash) {
		return true, nil
	}

	_, err := s.getMeta(hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes a blob and its metadata.
func (s *Store) Delete(hash string) error {
	if !fingerprint.Valid(hash) {
		return ErrInvalidHash
	}

	if err := os.Remove(s.contentPath(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing content file: %w", err)
	}
	if err := s.deleteMeta(hash); err != nil {
		return fmt.Errorf("deleting metadata: %w", err)
	}
	s.cache.Remove(hash)
	return nil
}

// Tag records which paths an operation snapshotted and the hash each held
// before mutation. An empty hash marks a path that did not exist remotely.
func (s *Store) Tag(opID string, paths map[string]string) error {
	data, err := json.Marshal(paths)
	if err != nil {
		return fmt.Errorf("marshaling tag: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tagKey(opID), data)
	})
}

// Tagged returns the path-to-hash map recorded for an operation.
func (s *Store) Tagged(opID string) (map[string]string, error) {
	var paths map[string]string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tagKey(opID))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &paths)
		})
	})
	return paths, err
}

func (s *Store) contentPath(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}

func (s *Store) storeMeta(meta Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(meta.Hash), data)
	})
}

func (s *Store) getMeta(hash string) (Meta, error) {
	var meta Meta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(hash))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	return meta, err
}

func (s *Store) deleteMeta(hash string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(metaKey(hash))
	})
}

func metaKey(hash string) []byte {
	return []byte(fmt.Sprintf("snap:%s", hash))
}

func tagKey(opID string) []byte {
	return []byte(fmt.Sprintf("optag:%s", opID))
}
