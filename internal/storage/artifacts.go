// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/devgenius/internal/util"
)

// KeyTimeLayout formats the timestamp part of artifact keys.
const KeyTimeLayout = "20060102-150405"

var (
	// ErrObjectNotFound is returned when a key has no stored object.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for keys that would escape the store.
	ErrInvalidKey = errors.New("invalid object key")
)

// ArtifactKey builds "{conversationID}/{contentType}-{YYYYMMDD-HHMMSS}.md".
func ArtifactKey(conversationID, contentType string, t time.Time) string {
	return fmt.Sprintf("%s/%s-%s.md", conversationID, contentType, t.UTC().Format(KeyTimeLayout))
}

// ArtifactStore keeps objects under BaseDir using slash-separated keys.
type ArtifactStore struct {
	// BaseDir is the root directory. Default: ~/.devgenius/artifacts
	BaseDir string
}

// NewArtifactStore creates the directory if needed.
func NewArtifactStore(baseDir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &ArtifactStore{BaseDir: baseDir}, nil
}

func (s *ArtifactStore) filePath(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean != key || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.BaseDir, filepath.FromSlash(clean)), nil
}

// Put stores data under key, replacing any existing object.
func (s *ArtifactStore) Put(key string, data []byte) error {
	p, err := s.filePath(key)
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Get returns the object stored under key.
func (s *ArtifactStore) Get(key string) ([]byte, error) {
	p, err := s.filePath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return data, err
}

// List returns the sorted keys under prefix, which must name a directory
// ("conv-1/"). Temp files from in-flight writes are skipped.
func (s *ArtifactStore) List(prefix string) ([]string, error) {
	dir := strings.TrimSuffix(prefix, "/")
	root := s.BaseDir
	if dir != "" {
		p, err := s.filePath(dir)
		if err != nil {
			return nil, err
		}
		root = p
	}

	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.BaseDir, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
