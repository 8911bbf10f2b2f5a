// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/devgenius/internal/export"
	"github.com/jeranaias/devgenius/internal/llm"
	"github.com/jeranaias/devgenius/internal/markdown"
	"github.com/jeranaias/devgenius/internal/session"
	"github.com/jeranaias/devgenius/internal/solution"
	"github.com/jeranaias/devgenius/internal/storage"
)

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// CreateConversationRequest is the body of POST /v1/conversations.
type CreateConversationRequest struct {
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	// Topic optionally opens the dialogue with a preset question.
	Topic string `json:"topic,omitempty"`
}

// ConversationResponse describes a conversation.
type ConversationResponse struct {
	ConversationID string            `json:"conversation_id"`
	Welcome        string            `json:"welcome,omitempty"`
	UserName       string            `json:"user_name,omitempty"`
	Messages       []llm.Message     `json:"messages"`
	Artifacts      map[string]string `json:"artifacts"`
	CreatedAt      time.Time         `json:"created_at"`
}

// MessageRequest is one user turn.
type MessageRequest struct {
	Content string `json:"content"`
	Stream  bool   `json:"stream"`
}

// MessageResponse is the non-streaming reply.
type MessageResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
	Incomplete     bool   `json:"incomplete,omitempty"`
	Warning        string `json:"warning,omitempty"`
}

func messageResponse(id string, r solution.Reply) MessageResponse {
	return MessageResponse{ConversationID: id, Reply: r.Text, Incomplete: r.Incomplete, Warning: r.Warning}
}

// ArtifactResponse adds the rendered markdown to an artifact.
type ArtifactResponse struct {
	*solution.Artifact
	ContentHTML string `json:"content_html"`
}

// ============================================================================
// CONVERSATIONS
// ============================================================================

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		log.Printf("INVALID_REQUEST | path=%s error=%v", r.URL.Path, err)
		writeError(w, http.StatusBadRequest, "Invalid request format", false)
		return
	}

	if req.Topic != "" {
		if _, err := solution.TopicQuestion(req.Topic); err != nil {
			s.writeFailure(w, err)
			return
		}
	}

	sess := s.sessions.Create(strings.TrimSpace(req.UserName), strings.TrimSpace(req.UserEmail))
	if err := s.svc.RegisterSession(r.Context(), sess); err != nil {
		log.Printf("LEDGER_WRITE_FAILED | conversation=%s error=%v", sess.ID, err)
	}
	if req.Topic != "" {
		if _, err := s.svc.StartTopic(r.Context(), sess, req.Topic, nil); err != nil {
			s.sessions.Delete(sess.ID)
			s.writeFailure(w, err)
			return
		}
		s.stats.Turns.Add(1)
	}
	s.stats.Conversations.Add(1)

	resp := conversationResponse(sess)
	resp.Welcome = solution.Welcome
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse(sess))
}

func conversationResponse(sess *session.Session) ConversationResponse {
	return ConversationResponse{
		ConversationID: sess.ID,
		UserName:       sess.UserName,
		Messages:       sess.Messages(),
		Artifacts:      sess.Artifacts(),
		CreatedAt:      sess.CreatedAt,
	}
}

// session resolves {id} or writes a 404.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return nil, false
	}
	return sess, true
}

// ============================================================================
// DIALOGUE
// ============================================================================

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req MessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		log.Printf("INVALID_REQUEST | path=%s error=%v", r.URL.Path, err)
		writeError(w, http.StatusBadRequest, "Invalid request format", false)
		return
	}
	if len(req.Content) > MaxPromptLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Message exceeds maximum length of %d", MaxPromptLength), false)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "Message content is required", false)
		return
	}

	s.reply(w, sess, req.Stream, func(sink llm.Sink) (solution.Reply, error) {
		return s.svc.Converse(r.Context(), sess, req.Content, sink)
	})
}

// handleAnalysis starts a conversation from an uploaded architecture image,
// sent as the multipart field "image". ?stream=true answers with SSE.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeFailure(w, solution.ErrImageTooLarge)
			return
		}
		log.Printf("INVALID_REQUEST | path=%s error=%v", r.URL.Path, err)
		writeError(w, http.StatusBadRequest, "A multipart \"image\" file is required", false)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, solution.MaxImageSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read the uploaded image", false)
		return
	}

	upload := solution.Upload{Name: header.Filename, Data: data}
	if _, err := upload.MediaType(); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.reply(w, sess, r.URL.Query().Get("stream") == "true", func(sink llm.Sink) (solution.Reply, error) {
		return s.svc.Analyze(r.Context(), sess, upload, sink)
	})
}

// reply runs one assistant turn and answers with JSON or, when stream is
// set, with Server-Sent Events.
func (s *Server) reply(w http.ResponseWriter, sess *session.Session, stream bool, run func(llm.Sink) (solution.Reply, error)) {
	if stream {
		s.streamReply(w, sess, run)
		return
	}
	reply, err := run(nil)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.stats.Turns.Add(1)
	writeJSON(w, http.StatusOK, messageResponse(sess.ID, reply))
}

// streamReply answers with Server-Sent Events: one "data" event per new
// piece of text, then a "done" event with the full reply or an "error"
// event. A "reset" event means the stream restarted after a retry and the
// client should discard what it has shown.
func (s *Server) streamReply(w http.ResponseWriter, sess *session.Session, run func(llm.Sink) (solution.Reply, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported", false)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sse := &sseWriter{w: w, flusher: flusher}
	reply, err := run(sse)
	if err != nil {
		s.stats.Failures.Add(1)
		status, msg, retryable := classify(err)
		sse.event("error", errorDetail{Message: msg, Code: status, Retryable: retryable})
		return
	}
	s.stats.Turns.Add(1)
	sse.event("done", messageResponse(sess.ID, reply))
}

// sseWriter is an llm.Sink that forwards only the text added since the last
// update.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	sent    string
}

func (s *sseWriter) Update(text string) {
	if !strings.HasPrefix(text, s.sent) {
		s.event("reset", struct{}{})
		s.sent = ""
	}
	delta := text[len(s.sent):]
	if delta == "" {
		return
	}
	s.sent = text
	s.data(map[string]string{"delta": delta})
}

func (s *sseWriter) data(v any) {
	payload, _ := json.Marshal(v)
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	s.flusher.Flush()
}

func (s *sseWriter) event(name string, v any) {
	payload, _ := json.Marshal(v)
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload)
	s.flusher.Flush()
}

// ============================================================================
// ARTIFACTS
// ============================================================================

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	kind, err := solution.ParseKind(r.PathValue("kind"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	artifact, err := s.svc.Generate(r.Context(), sess, kind, nil)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.stats.Artifacts.Add(1)

	html, err := markdown.ToHTML(artifact.Content)
	if err != nil {
		log.Printf("MARKDOWN_RENDER_FAILED | conversation=%s kind=%s error=%v", sess.ID, kind, err)
	}
	writeJSON(w, http.StatusOK, ArtifactResponse{Artifact: artifact, ContentHTML: html})
}

// ============================================================================
// FEEDBACK AND BUNDLE
// ============================================================================

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var fb solution.Feedback
	if err := decodeJSON(w, r, &fb); err != nil {
		log.Printf("INVALID_REQUEST | path=%s error=%v", r.URL.Path, err)
		writeError(w, http.StatusBadRequest, "Invalid request format", false)
		return
	}
	if err := s.svc.RecordFeedback(r.Context(), sess, fb); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// handleLedger returns the conversation's ledger rows: the session record,
// every stored exchange and the feedback given.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	rec, err := s.svc.Record(r.Context(), sess)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Begin(r.Context()); err != nil {
		s.writeFailure(w, err)
		return
	}
	data, location, err := s.svc.Bundle(r.Context(), sess)
	sess.End()
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", storage.BundleName))
	w.Header().Set("X-Bundle-Location", location)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("RESPONSE_WRITE_FAILED | conversation=%s error=%v", sess.ID, err)
	}
}

// handleTranscript renders the conversation log. ?format=md|html|json,
// default html.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	exporter, err := export.ForFormat(r.URL.Query().Get("format"), nil)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	data, err := exporter.Export(export.FromSession(sess, s.svc.Options().Model))
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", exporter.MimeType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("inline; filename=%q", "transcript"+exporter.FileExtension()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("RESPONSE_WRITE_FAILED | conversation=%s error=%v", sess.ID, err)
	}
}

// ============================================================================
// HEALTH AND STATS
// ============================================================================

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"topics": solution.Topics()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.opts.Version,
		"model":   s.svc.Options().Model,
		"uptime":  s.stats.Uptime().Round(time.Second).String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsSnapshot{
		Conversations:  s.stats.Conversations.Load(),
		Turns:          s.stats.Turns.Load(),
		Artifacts:      s.stats.Artifacts.Load(),
		Failures:       s.stats.Failures.Load(),
		ActiveSessions: s.sessions.Len(),
		Uptime:         s.stats.Uptime().Round(time.Second).String(),
	})
}

// ============================================================================
// ERROR MAPPING
// ============================================================================

// DefaultRetryAfter is sent with 503 responses when the provider gave no hint.
const DefaultRetryAfter = 5 * time.Second

// classify maps a service error to a status, a user-safe message and
// whether retrying can help. Internal details are never returned.
func classify(err error) (int, string, bool) {
	var genErr *solution.GenerationError
	switch {
	case errors.As(err, &genErr):
		return http.StatusUnprocessableEntity, genErr.Message, genErr.Retryable
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "Conversation not found", false
	case errors.Is(err, solution.ErrNoSolution):
		return http.StatusConflict, "Describe your use case before generating artifacts", false
	case errors.Is(err, solution.ErrUnknownKind):
		return http.StatusBadRequest, "Unknown artifact kind", false
	case errors.Is(err, solution.ErrEmptyPrompt):
		return http.StatusBadRequest, "Message content is required", false
	case errors.Is(err, solution.ErrUnknownTopic):
		return http.StatusBadRequest, "Unknown topic", false
	case errors.Is(err, solution.ErrInvalidImage):
		return http.StatusUnsupportedMediaType, "Upload a PNG, JPEG, GIF or WebP image", false
	case errors.Is(err, solution.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, "The image exceeds the 5 MB limit", false
	case errors.Is(err, solution.ErrConversationStarted):
		return http.StatusConflict, "Upload an architecture image at the start of a new conversation", false
	case errors.Is(err, storage.ErrSessionNotFound):
		return http.StatusNotFound, "Conversation has no ledger record", false
	case errors.Is(err, export.ErrUnknownFormat):
		return http.StatusBadRequest, "Unknown transcript format", false
	case errors.Is(err, export.ErrEmptyTranscript):
		return http.StatusConflict, "The conversation has no entries yet", false
	case errors.Is(err, storage.ErrExplanationRequired):
		return http.StatusBadRequest, "Feedback explanation is required", false
	case llm.IsRateLimited(err):
		return http.StatusServiceUnavailable, "The model is busy. Please retry shortly.", true
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The model did not answer in time. Please try again.", true
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "Request cancelled", true
	default:
		return http.StatusBadGateway, solution.GenericFailure, true
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status, msg, retryable := classify(err)
	if status >= 500 || status == http.StatusUnprocessableEntity {
		s.stats.Failures.Add(1)
		log.Printf("REQUEST_FAILED | status=%d error=%v", status, err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retryAfter(err).Seconds()))))
	}
	writeError(w, status, msg, retryable)
}

func retryAfter(err error) time.Duration {
	var rl *llm.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	return DefaultRetryAfter
}
