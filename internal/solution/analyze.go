// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package solution

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/jeranaias/devgenius/internal/llm"
	"github.com/jeranaias/devgenius/internal/session"
)

// MaxImageSize is the largest architecture image accepted, the provider's
// per-image limit.
const MaxImageSize = 5 << 20

// UploadKind is the artifact slot that records the uploaded image.
const UploadKind = "upload"

const analysisPrompt = `Explain in detail the architecture flow.
If the given image is not related to technical architecture, then please request the user to upload an AWS architecture or hand drawn architecture.
When generating the solution, highlight the AWS service names in bold.`

// imageExtensions maps the accepted media types to file extensions.
var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Upload is an architecture image supplied by the user.
type Upload struct {
	Name string
	Data []byte
}

// MediaType sniffs the image format from its content.
func (u Upload) MediaType() (string, error) {
	if len(u.Data) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}
	if len(u.Data) > MaxImageSize {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrImageTooLarge, len(u.Data), MaxImageSize)
	}
	mediaType := http.DetectContentType(u.Data)
	if _, ok := imageExtensions[mediaType]; !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidImage, mediaType)
	}
	return mediaType, nil
}

func (u Upload) fileName(mediaType string) string {
	name := filepath.Base(filepath.Clean("/" + u.Name))
	if name == "/" || name == "." {
		return "architecture" + imageExtensions[mediaType]
	}
	return name
}

// Analyze opens a conversation from an existing architecture diagram. The
// image is stored under {conversation_id}/uploaded_file/, sent to the model
// with the analysis prompt, and the analysis becomes the first assistant
// turn. The history keeps a text note in place of the image, so later turns
// and generators work from the analysis.
func (s *Service) Analyze(ctx context.Context, sess *session.Session, up Upload, sink llm.Sink) (Reply, error) {
	mediaType, err := up.MediaType()
	if err != nil {
		return Reply{}, err
	}
	if err := sess.Begin(ctx); err != nil {
		return Reply{}, err
	}
	defer sess.End()

	if len(sess.Messages()) > 0 {
		return Reply{}, ErrConversationStarted
	}

	name := up.fileName(mediaType)
	key := path.Join(sess.ID, "uploaded_file", name)
	if err := s.artifacts.Put(key, up.Data); err != nil {
		return Reply{}, fmt.Errorf("store upload: %w", err)
	}

	o := s.Options()
	msgs := []llm.Message{llm.NewImageMessage(analysisPrompt, llm.Image{MediaType: mediaType, Data: up.Data})}

	start := time.Now()
	res, err := llm.InvokeWithRetry(ctx, s.transport, s.request(o, msgs), s.invokeOptions(o, sink))
	if err != nil {
		log.Printf("ANALYZE_FAILED | conversation=%s error=%v", sess.ID, err)
		return Reply{}, fmt.Errorf("analyze: %w", err)
	}

	note := fmt.Sprintf("Here is a diagram of my existing architecture (%s). %s", name, analysisPrompt)
	sess.Append(llm.NewUserMessage(note), llm.NewAssistantMessage(res.Text))
	sess.RecordInteraction("Architecture details", res.Text)
	sess.RecordArtifact(UploadKind, key)
	if _, err := s.ledger.SaveConversation(ctx, sess.ID, analysisPrompt, res.Text); err != nil {
		log.Printf("LEDGER_WRITE_FAILED | conversation=%s error=%v", sess.ID, err)
	}
	log.Printf("ANALYZE_DONE | conversation=%s image=%s type=%s bytes=%d chars=%d elapsed=%s",
		sess.ID, key, mediaType, len(up.Data), len(res.Text), time.Since(start).Round(time.Millisecond))
	return newReply(res), nil
}
