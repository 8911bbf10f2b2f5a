// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package solution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jeranaias/devgenius/internal/diagram"
	"github.com/jeranaias/devgenius/internal/llm"
	"github.com/jeranaias/devgenius/internal/markdown"
	"github.com/jeranaias/devgenius/internal/session"
	"github.com/jeranaias/devgenius/internal/storage"
)

// TemplateName is the object name of the extracted CloudFormation template.
const TemplateName = "template.yaml"

const launchStackFormat = "https://console.aws.amazon.com/cloudformation/home?region=%s#/stacks/new?stackName=%s&templateURL=%s"

// Artifact is one generated deliverable.
type Artifact struct {
	Kind           Kind   `json:"kind"`
	ConversationID string `json:"conversation_id"`
	Key            string `json:"key"`
	Content        string `json:"content"`

	// Code is the extracted block for architecture (XML) and cfn (YAML).
	Code string `json:"code,omitempty"`
	// HTML is the draw.io viewer page for architecture artifacts.
	HTML string `json:"html,omitempty"`

	TemplateKey    string `json:"template_key,omitempty"`
	LaunchStackURL string `json:"launch_stack_url,omitempty"`

	Rounds     int       `json:"rounds"`
	Incomplete bool      `json:"incomplete,omitempty"`
	Warning    string    `json:"warning,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// generator describes how one kind is requested and post-processed.
type generator struct {
	prompt       func(sess *session.Session) string
	withHistory  bool
	reasoning    bool
	continuation bool
	finish       func(s *Service, o Options, a *Artifact) error
}

var generators = map[Kind]generator{
	KindCost: {
		prompt: func(sess *session.Session) string { return costPrompt(sess.AssistantText()) },
		finish: func(_ *Service, _ Options, a *Artifact) error {
			a.Content = strings.ReplaceAll(a.Content, "$", "USD ")
			return nil
		},
	},
	KindArchitecture: {
		prompt:       func(*session.Session) string { return architecturePrompt },
		withHistory:  true,
		reasoning:    true,
		continuation: true,
		finish:       finishArchitecture,
	},
	KindCFN: {
		prompt:      func(*session.Session) string { return cfnPrompt },
		withHistory: true,
		finish:      finishCFN,
	},
	KindCDK: {
		prompt:      func(*session.Session) string { return cdkPrompt },
		withHistory: true,
	},
	KindDocumentation: {
		prompt:      func(*session.Session) string { return documentationPrompt },
		withHistory: true,
	},
}

func finishArchitecture(_ *Service, _ Options, a *Artifact) error {
	code, err := markdown.ExtractCodeBlock(a.Content, "xml")
	if err != nil {
		return err
	}
	html, err := diagram.Render(code)
	if err != nil {
		return err
	}
	a.Code = code
	a.HTML = html
	return nil
}

func finishCFN(s *Service, o Options, a *Artifact) error {
	code, err := markdown.ExtractCodeBlock(a.Content, "yaml")
	if err != nil {
		return err
	}
	key := path.Join(a.ConversationID, TemplateName)
	if err := s.artifacts.Put(key, []byte(code)); err != nil {
		return fmt.Errorf("store template: %w", err)
	}
	a.Code = code
	a.TemplateKey = key
	a.LaunchStackURL = LaunchStackURL(o.Region, o.StackName, s.objectURL(key))
	return nil
}

// LaunchStackURL builds the CloudFormation console link that creates a stack
// from templateURL.
func LaunchStackURL(region, stackName, templateURL string) string {
	return fmt.Sprintf(launchStackFormat, url.QueryEscape(region), url.QueryEscape(stackName), url.QueryEscape(templateURL))
}

// Generate produces one artifact from the session's conversation. The
// generation prompt goes to a copy of the history, so the dialogue is never
// changed by a generator. Post-processing failures come back as a retryable
// *GenerationError.
func (s *Service) Generate(ctx context.Context, sess *session.Session, kind Kind, sink llm.Sink) (*Artifact, error) {
	if err := sess.Begin(ctx); err != nil {
		return nil, err
	}
	defer sess.End()
	return s.generate(ctx, sess, kind, sink)
}

func (s *Service) generate(ctx context.Context, sess *session.Session, kind Kind, sink llm.Sink) (*Artifact, error) {
	gen, ok := generators[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if !sess.HasAssistantReply() {
		return nil, ErrNoSolution
	}

	o := s.Options()
	prompt := gen.prompt(sess)
	var msgs []llm.Message
	if gen.withHistory {
		msgs = sess.Messages()
	}
	msgs = append(msgs, llm.NewUserMessage(prompt))

	req := s.request(o, msgs)
	if gen.reasoning {
		req.Reasoning = true
		req.ReasoningBudget = o.ReasoningBudget
	}

	start := time.Now()
	var out llm.Generation
	var err error
	if gen.continuation {
		out, err = llm.GenerateWithContinuation(ctx, s.transport, req, prompt, llm.ContinuationOptions{
			InvokeOptions: s.invokeOptions(o, sink),
			MaxRounds:     o.MaxRounds,
		})
	} else {
		var res llm.StreamResult
		res, err = llm.InvokeWithRetry(ctx, s.transport, req, s.invokeOptions(o, sink))
		out = llm.Generation{Text: res.Text, StopReason: res.StopReason, Rounds: 1}
	}
	if err != nil {
		log.Printf("GENERATE_FAILED | conversation=%s kind=%s error=%v", sess.ID, kind, err)
		return nil, fmt.Errorf("generate %s: %w", kind, err)
	}

	now := s.now()
	a := &Artifact{
		Kind:           kind,
		ConversationID: sess.ID,
		Key:            storage.ArtifactKey(sess.ID, string(kind), now),
		Content:        out.Text,
		Rounds:         out.Rounds,
		Incomplete:     out.Incomplete || out.StopReason.Truncated(),
		CreatedAt:      now,
	}
	switch {
	case out.Incomplete:
		a.Warning = IncompleteWarning
	case a.Incomplete:
		a.Warning = TruncatedWarning
	}

	if gen.finish != nil {
		if err := gen.finish(s, o, a); err != nil {
			var perr *diagram.ParseError
			if errors.Is(err, markdown.ErrNotFound) || errors.As(err, &perr) {
				log.Printf("GENERATE_UNUSABLE | conversation=%s kind=%s rounds=%d error=%v", sess.ID, kind, a.Rounds, err)
				return nil, newGenerationError(kind, err)
			}
			return nil, err
		}
	}

	if err := s.artifacts.Put(a.Key, []byte(a.Content)); err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}
	if _, err := s.ledger.SaveConversation(ctx, sess.ID, prompt, a.Content); err != nil {
		log.Printf("LEDGER_WRITE_FAILED | conversation=%s kind=%s error=%v", sess.ID, kind, err)
	}
	sess.RecordInteraction(kind.Title(), a.Content)
	sess.RecordArtifact(string(kind), a.Key)

	log.Printf("GENERATE_DONE | conversation=%s kind=%s key=%s rounds=%d incomplete=%t elapsed=%s",
		sess.ID, kind, a.Key, a.Rounds, a.Incomplete, time.Since(start).Round(time.Millisecond))
	return a, nil
}

// Result is the outcome of one kind in GenerateAll.
type Result struct {
	Kind     Kind
	Artifact *Artifact
	Err      error
}

// GenerateAll runs every generator in turn, holding the session for the
// whole run. A failing kind does not stop the others. sinkFor may be nil or
// return nil for kinds without live output.
func (s *Service) GenerateAll(ctx context.Context, sess *session.Session, sinkFor func(Kind) llm.Sink) ([]Result, error) {
	if !sess.HasAssistantReply() {
		return nil, ErrNoSolution
	}
	if err := sess.Begin(ctx); err != nil {
		return nil, err
	}
	defer sess.End()

	results := make([]Result, 0, len(Kinds))
	for _, kind := range Kinds {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		var sink llm.Sink
		if sinkFor != nil {
			sink = sinkFor(kind)
		}
		a, err := s.generate(ctx, sess, kind, sink)
		results = append(results, Result{Kind: kind, Artifact: a, Err: err})
	}
	return results, nil
}
