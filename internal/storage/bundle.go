// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"archive/zip"
	"bytes"
	"fmt"
	"log"
	"path"
	"strings"
)

const (
	// TranscriptName is the transcript object stored next to the artifacts.
	TranscriptName = "transcript.md"
	// BundleName is the zip object written by Bundle.
	BundleName = "conversation_artifacts.zip"
)

// Bundle writes transcript to "{conversationID}/transcript.md", zips every
// markdown object of the conversation under "{conversationID}/" and stores
// the archive as "{conversationID}/conversation_artifacts.zip". The archive
// bytes are returned.
func (s *ArtifactStore) Bundle(conversationID, transcript string) ([]byte, error) {
	if err := s.Put(path.Join(conversationID, TranscriptName), []byte(transcript)); err != nil {
		return nil, err
	}

	keys, err := s.List(conversationID + "/")
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	count := 0
	for _, key := range keys {
		if !strings.HasSuffix(key, ".md") {
			continue
		}
		data, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		w, err := zw.Create(path.Join(conversationID, path.Base(key)))
		if err != nil {
			return nil, fmt.Errorf("zip %s: %w", key, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("zip %s: %w", key, err)
		}
		count++
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}

	if err := s.Put(path.Join(conversationID, BundleName), buf.Bytes()); err != nil {
		return nil, err
	}
	log.Printf("BUNDLE_CREATED | conversation=%s files=%d bytes=%d", conversationID, count, buf.Len())
	return buf.Bytes(), nil
}
