// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package solution runs the design dialogue and turns a finished
// conversation into deliverables: a cost estimate, an architecture diagram,
// CloudFormation and CDK code, and technical documentation.
package solution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/devgenius/internal/llm"
	"github.com/jeranaias/devgenius/internal/session"
	"github.com/jeranaias/devgenius/internal/storage"
	"github.com/jeranaias/devgenius/internal/util"
)

// Options tune model requests and artifact publishing.
type Options struct {
	Model           string
	MaxTokens       int
	Temperature     float64
	ReasoningBudget int
	Retry           llm.RetryPolicy
	MaxRounds       int

	// Region and TemplateBaseURL build the CloudFormation launch link.
	// TemplateBaseURL is the public prefix under which stored objects are
	// reachable; when empty, stored objects are referenced as file URLs.
	Region          string
	TemplateBaseURL string
	StackName       string

	SystemPrompt string
}

// DefaultOptions mirrors config.Default.
func DefaultOptions() Options {
	return Options{
		MaxTokens:       64000,
		Temperature:     0.1,
		ReasoningBudget: 2000,
		Retry:           llm.DefaultRetryPolicy(),
		MaxRounds:       llm.DefaultMaxRounds,
		Region:          "us-west-2",
		StackName:       "myteststack",
		SystemPrompt:    DefaultSystemPrompt,
	}
}

// Service owns the model transport and the persistence layers.
type Service struct {
	transport llm.Transport
	artifacts *storage.ArtifactStore
	ledger    *storage.Ledger

	mu   sync.RWMutex
	opts Options

	now   func() time.Time
	sleep llm.Sleeper
}

// NewService wires a transport to the stores. Zero option fields fall back
// to DefaultOptions.
func NewService(t llm.Transport, artifacts *storage.ArtifactStore, ledger *storage.Ledger, opts Options) *Service {
	return &Service{
		transport: t,
		artifacts: artifacts,
		ledger:    ledger,
		opts:      withDefaults(opts),
		now:       time.Now,
		sleep:     llm.ContextSleep,
	}
}

func withDefaults(o Options) Options {
	d := DefaultOptions()
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.ReasoningBudget <= 0 {
		o.ReasoningBudget = d.ReasoningBudget
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = d.Retry
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = d.MaxRounds
	}
	if o.Region == "" {
		o.Region = d.Region
	}
	if o.StackName == "" {
		o.StackName = d.StackName
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = d.SystemPrompt
	}
	return o
}

// Options returns the current options.
func (s *Service) Options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// UpdateOptions swaps the options, e.g. after a config reload. Requests in
// flight keep the options they started with.
func (s *Service) UpdateOptions(opts Options) {
	s.mu.Lock()
	s.opts = withDefaults(opts)
	s.mu.Unlock()
	log.Printf("SOLUTION_OPTIONS_UPDATED | model=%s max_tokens=%d", opts.Model, opts.MaxTokens)
}

func (s *Service) invokeOptions(o Options, sink llm.Sink) llm.InvokeOptions {
	return llm.InvokeOptions{Retry: o.Retry, Sink: sink, Sleep: s.sleep}
}

func (s *Service) request(o Options, msgs []llm.Message) llm.Request {
	return llm.Request{
		Messages:    msgs,
		System:      o.SystemPrompt,
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

// RegisterSession records a new conversation in the ledger.
func (s *Service) RegisterSession(ctx context.Context, sess *session.Session) error {
	return s.ledger.SaveSession(ctx, sess.ID, sess.UserName, sess.UserEmail)
}

// =============================================================================
// DIALOGUE
// =============================================================================

// Reply is the assistant's answer to one dialogue turn.
type Reply struct {
	Text       string         `json:"reply"`
	StopReason llm.StopReason `json:"stop_reason,omitempty"`
	Incomplete bool           `json:"incomplete,omitempty"`
	Warning    string         `json:"warning,omitempty"`
}

func newReply(res llm.StreamResult) Reply {
	r := Reply{Text: res.Text, StopReason: res.StopReason}
	if res.StopReason.Truncated() {
		r.Incomplete = true
		r.Warning = TruncatedWarning
	}
	return r
}

// Converse runs one dialogue turn. The user and assistant messages are
// appended to the history only when the model answers; a failed turn leaves
// the session as it was. A reply cut off by the token limit is kept and
// marked Incomplete.
func (s *Service) Converse(ctx context.Context, sess *session.Session, text string, sink llm.Sink) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyPrompt
	}
	if err := sess.Begin(ctx); err != nil {
		return Reply{}, err
	}
	defer sess.End()

	o := s.Options()
	user := llm.NewUserMessage(text)
	msgs := append(sess.Messages(), user)

	start := time.Now()
	res, err := llm.InvokeWithRetry(ctx, s.transport, s.request(o, msgs), s.invokeOptions(o, sink))
	if err != nil {
		log.Printf("CONVERSE_FAILED | conversation=%s error=%v", sess.ID, err)
		return Reply{}, fmt.Errorf("converse: %w", err)
	}

	sess.Append(user, llm.NewAssistantMessage(res.Text))
	sess.RecordInteraction("Details", res.Text)
	if _, err := s.ledger.SaveConversation(ctx, sess.ID, text, res.Text); err != nil {
		log.Printf("LEDGER_WRITE_FAILED | conversation=%s error=%v", sess.ID, err)
	}
	log.Printf("CONVERSE_DONE | conversation=%s prompt=%q chars=%d stop=%s elapsed=%s",
		sess.ID, util.Preview(text, 40), len(res.Text), res.StopReason, time.Since(start).Round(time.Millisecond))
	return newReply(res), nil
}

// StartTopic opens the dialogue with a preset question.
func (s *Service) StartTopic(ctx context.Context, sess *session.Session, topic string, sink llm.Sink) (Reply, error) {
	question, err := TopicQuestion(topic)
	if err != nil {
		return Reply{}, err
	}
	return s.Converse(ctx, sess, question, sink)
}

// =============================================================================
// FEEDBACK AND BUNDLE
// =============================================================================

// Feedback is a user rating of a reply or artifact.
type Feedback struct {
	Positive    bool   `json:"positive"`
	Explanation string `json:"explanation"`
	Response    string `json:"response"`
	// Kind is the artifact rated; empty rates a dialogue reply.
	Kind Kind `json:"kind,omitempty"`
}

// RecordFeedback stores fb against the session.
func (s *Service) RecordFeedback(ctx context.Context, sess *session.Session, fb Feedback) error {
	useCase := "chat"
	if fb.Kind != "" {
		if _, err := ParseKind(string(fb.Kind)); err != nil {
			return err
		}
		useCase = fb.Kind.UseCase()
	}
	_, err := s.ledger.SaveFeedback(ctx, storage.FeedbackRecord{
		ConversationID: sess.ID,
		Positive:       fb.Positive,
		Explanation:    fb.Explanation,
		Response:       fb.Response,
		Model:          s.Options().Model,
		UseCase:        useCase,
	})
	return err
}

// Record is what the ledger holds for one conversation.
type Record struct {
	Session  *storage.SessionRecord       `json:"session"`
	History  []storage.ConversationRecord `json:"history"`
	Feedback []storage.FeedbackRecord     `json:"feedback"`
}

// Record reads the conversation's ledger rows.
func (s *Service) Record(ctx context.Context, sess *session.Session) (*Record, error) {
	rec, err := s.ledger.Session(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	history, err := s.ledger.History(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	feedback, err := s.ledger.Feedback(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	return &Record{Session: rec, History: history, Feedback: feedback}, nil
}

// Bundle zips the transcript and every stored artifact of the session and
// records the archive location in the ledger.
func (s *Service) Bundle(ctx context.Context, sess *session.Session) ([]byte, string, error) {
	data, err := s.artifacts.Bundle(sess.ID, sess.Transcript())
	if err != nil {
		return nil, "", fmt.Errorf("bundle: %w", err)
	}
	location := s.objectURL(sess.ID + "/" + storage.BundleName)
	if err := s.ledger.UpdateSession(ctx, sess.ID, location); err != nil {
		if !errors.Is(err, storage.ErrSessionNotFound) {
			return nil, "", err
		}
		if err := s.ledger.SaveSession(ctx, sess.ID, sess.UserName, sess.UserEmail); err != nil {
			return nil, "", err
		}
		if err := s.ledger.UpdateSession(ctx, sess.ID, location); err != nil {
			return nil, "", err
		}
	}
	return data, location, nil
}

// objectURL is where a stored key can be fetched from.
func (s *Service) objectURL(key string) string {
	if base := s.Options().TemplateBaseURL; base != "" {
		return strings.TrimRight(base, "/") + "/" + key
	}
	p, err := filepath.Abs(filepath.Join(s.artifacts.BaseDir, filepath.FromSlash(key)))
	if err != nil {
		p = filepath.Join(s.artifacts.BaseDir, filepath.FromSlash(key))
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String()
}
