// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Examples:
//
//	devgenius ask "Serverless image thumbnailing for an S3 bucket"
//	devgenius ask --generate cost,cfn "Static website with a contact form"
//	devgenius ask --generate all "Multi-region REST API"
//	devgenius ask --image current.png "How do I make this multi-region?"
//	devgenius ask --topic data-lake --generate cost

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jeranaias/devgenius/internal/llm"
	"github.com/jeranaias/devgenius/internal/session"
	"github.com/jeranaias/devgenius/internal/solution"
)

// HandleAsk sends one prompt and optionally generates artifacts from the
// reply.
func HandleAsk(args Args) error {
	redirectLogs(!args.Verbose)
	cfg, err := loadConfig(args.ConfigPath)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runAsk(ctx, app, args, stdout)
}

func runAsk(ctx context.Context, app *App, args Args, w io.Writer) error {
	sess := app.Sessions.Create(args.Name, args.Email)
	defer app.Sessions.Delete(sess.ID)
	if err := app.Service.RegisterSession(ctx, sess); err != nil {
		return commandError("ask", "register conversation", err)
	}

	if _, _, err := openConversation(ctx, app, sess, args, w); err != nil {
		return commandError("ask", "open conversation", err)
	}
	if args.Prompt != "" {
		display := newLiveDisplay(w, IsStdoutTTY(), GetTerminalWidth(), markdownStyle(args.Style))
		reply, err := app.Service.Converse(ctx, sess, args.Prompt, display)
		if err != nil {
			display.Abort()
			return commandError("ask", "converse", err)
		}
		showReply(w, display, reply)
	}

	if len(args.Generate) > 0 {
		if err := generateArtifacts(ctx, app, sess, args.Generate, w, args.Quiet); err != nil {
			return commandError("ask", "generate", err)
		}
	}
	if !args.Quiet {
		fmt.Fprintln(w, DimStyle.Render("conversation "+sess.ID))
	}
	return nil
}

// generateArtifacts produces each kind in turn and reports the outcome.
// A failed kind does not stop the others.
func generateArtifacts(ctx context.Context, app *App, sess *session.Session, kinds []solution.Kind, w io.Writer, quiet bool) error {
	var results []solution.Result
	if len(kinds) == len(solution.Kinds) {
		var err error
		results, err = app.Service.GenerateAll(ctx, sess, func(k solution.Kind) llm.Sink {
			if !quiet {
				fmt.Fprintln(w, DimStyle.Render("Generating "+k.Title()+"..."))
			}
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		for _, k := range kinds {
			if !quiet {
				fmt.Fprintln(w, DimStyle.Render("Generating "+k.Title()+"..."))
			}
			art, err := app.Service.Generate(ctx, sess, k, nil)
			if errors.Is(err, solution.ErrNoSolution) || ctx.Err() != nil {
				return err
			}
			results = append(results, solution.Result{Kind: k, Artifact: art, Err: err})
		}
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintln(w, ErrorStyle.Render(r.Kind.Title()+": ")+userMessage(r.Err))
			continue
		}
		reportArtifact(app, r.Artifact, w, quiet)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d artifacts failed", failed, len(results))
	}
	return nil
}

// reportArtifact prints where an artifact was stored. Diagram HTML is
// stored next to the markdown so it can be opened in a browser.
func reportArtifact(app *App, a *solution.Artifact, w io.Writer, quiet bool) {
	path := filepath.Join(app.Artifacts.BaseDir, filepath.FromSlash(a.Key))
	if quiet {
		fmt.Fprintln(w, path)
		return
	}

	fmt.Fprintln(w, SuccessStyle.Render(a.Kind.Title()))
	fmt.Fprintln(w, FormatKeyValue("saved", path))
	if a.HTML != "" {
		htmlKey := strings.TrimSuffix(a.Key, ".md") + ".html"
		if err := app.Artifacts.Put(htmlKey, []byte(a.HTML)); err == nil {
			fmt.Fprintln(w, FormatKeyValue("diagram", filepath.Join(app.Artifacts.BaseDir, filepath.FromSlash(htmlKey))))
		}
	}
	if a.LaunchStackURL != "" {
		fmt.Fprintln(w, FormatKeyValue("launch stack", a.LaunchStackURL))
	}
	if a.Rounds > 1 {
		fmt.Fprintln(w, FormatKeyValue("rounds", fmt.Sprint(a.Rounds)))
	}
	if a.Incomplete {
		fmt.Fprintln(w, WarningStyle.Render(a.Warning))
	}
}

// userMessage is the text shown for a failed artifact. The cause is logged.
func userMessage(err error) string {
	log.Printf("GENERATE_FAILED | error=%v", err)
	var ge *solution.GenerationError
	switch {
	case errors.As(err, &ge):
		return ge.Message
	case llm.IsRateLimited(err):
		return "The model is rate limiting requests. Please try again shortly."
	default:
		return solution.GenericFailure
	}
}
