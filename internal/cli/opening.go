// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/devgenius/internal/session"
	"github.com/jeranaias/devgenius/internal/solution"
)

// readImage loads an architecture image for --image.
func readImage(path string) (solution.Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return solution.Upload{}, err
	}
	if info.Size() > solution.MaxImageSize {
		return solution.Upload{}, fmt.Errorf("%w: %s is %d bytes (limit %d)", solution.ErrImageTooLarge, path, info.Size(), solution.MaxImageSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return solution.Upload{}, err
	}
	return solution.Upload{Name: path, Data: data}, nil
}

// openConversation runs the --image analysis or the --topic opener.
// It reports false when neither flag is set.
func openConversation(ctx context.Context, app *App, sess *session.Session, args Args, w io.Writer) (solution.Reply, bool, error) {
	if args.Image == "" && args.Topic == "" {
		return solution.Reply{}, false, nil
	}

	display := newLiveDisplay(w, IsStdoutTTY(), GetTerminalWidth(), markdownStyle(args.Style))
	var (
		reply solution.Reply
		err   error
	)
	if args.Image != "" {
		upload, rerr := readImage(args.Image)
		if rerr != nil {
			return solution.Reply{}, false, rerr
		}
		if !args.Quiet {
			fmt.Fprintln(w, DimStyle.Render("Analyzing "+args.Image+"..."))
		}
		reply, err = app.Service.Analyze(ctx, sess, upload, display)
	} else {
		question, qerr := solution.TopicQuestion(args.Topic)
		if qerr != nil {
			return solution.Reply{}, false, qerr
		}
		if !args.Quiet {
			fmt.Fprintln(w, PromptStyle.Render("you> ")+question)
		}
		reply, err = app.Service.StartTopic(ctx, sess, args.Topic, display)
	}
	if err != nil {
		display.Abort()
		return solution.Reply{}, false, err
	}
	showReply(w, display, reply)
	return reply, true, nil
}

// showReply finishes a streamed reply and flags truncation.
func showReply(w io.Writer, display *liveDisplay, reply solution.Reply) {
	display.Finish(reply.Text)
	if reply.Incomplete {
		fmt.Fprintln(w, WarningStyle.Render(reply.Warning))
	}
}
