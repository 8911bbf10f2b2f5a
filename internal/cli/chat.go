// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive design conversation.
//
// Command: chat (default when no command is given)
//
// Interactive commands:
//
//	/generate KIND|all        Generate artifacts from the conversation
//	/bundle [FILE]            Zip transcript and artifacts
//	/export [FILE]            Write the transcript (.html, .md or .json)
//	/feedback up|down [TEXT]  Rate the last reply
//	/history                  Show the conversation so far
//	/help, /h                 Show commands
//	/quit, /q                 Exit
//	Ctrl+C                    Cancel the current reply
//	Ctrl+D                    Exit
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
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/devgenius/internal/config"
	"github.com/jeranaias/devgenius/internal/export"
	"github.com/jeranaias/devgenius/internal/session"
	"github.com/jeranaias/devgenius/internal/solution"
	"github.com/jeranaias/devgenius/internal/util"
)

var chatCommandNames = []string{"help", "generate", "bundle", "export", "feedback", "history", "quit", "exit"}

// lineReader is the part of liner.State the REPL uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor and loads ~/.devgenius/chat_history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeChatCommand)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
	return c
}

// Prompt implements lineReader.
func (c *ChatCLI) Prompt(prompt string) (string, error) {
	return c.line.Prompt(prompt)
}

// AppendHistory implements lineReader.
func (c *ChatCLI) AppendHistory(item string) {
	c.line.AppendHistory(item)
}

// Close saves history (mode 0600) and restores the terminal.
func (c *ChatCLI) Close() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

func completeChatCommand(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	var out []string
	for _, name := range chatCommandNames {
		if strings.HasPrefix("/"+name, line) {
			out = append(out, "/"+name)
		}
	}
	if strings.HasPrefix(line, "/generate ") {
		prefix := strings.TrimPrefix(line, "/generate ")
		for _, k := range append([]solution.Kind{"all"}, solution.Kinds...) {
			if strings.HasPrefix(string(k), prefix) {
				out = append(out, "/generate "+string(k))
			}
		}
	}
	return out
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChat runs the interactive conversation.
func HandleChat(args Args) error {
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

	in := NewChatCLI()
	defer in.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	return runChat(ctx, app, args, in, stdout)
}

// chatState is one running REPL.
type chatState struct {
	app       *App
	sess      *session.Session
	args      Args
	w         io.Writer
	lastReply string
	turns     int
	started   time.Time
}

func runChat(ctx context.Context, app *App, args Args, in lineReader, w io.Writer) error {
	sess := app.Sessions.Create(args.Name, args.Email)
	defer app.Sessions.Delete(sess.ID)
	if err := app.Service.RegisterSession(ctx, sess); err != nil {
		return commandError("chat", "register conversation", err)
	}

	c := &chatState{app: app, sess: sess, args: args, w: w, started: time.Now()}
	if !args.Quiet {
		c.printWelcome()
	}
	opening, opened, err := openConversation(ctx, app, sess, args, w)
	if err != nil {
		return commandError("chat", "open conversation", err)
	}
	if opened {
		c.lastReply = opening.Text
		c.turns++
	}

	for {
		if ctx.Err() != nil {
			break
		}
		input, err := in.Prompt(PromptStyle.Render("you> "))
		if errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(w, DimStyle.Render("(type /quit to exit)"))
			continue
		}
		if err != nil {
			// io.EOF (Ctrl+D) or a closed terminal.
			fmt.Fprintln(w)
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		in.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			quit, err := c.command(ctx, input)
			if err != nil {
				DisplayError(w, err)
			}
			if quit {
				break
			}
			continue
		}

		if err := c.converse(ctx, input); err != nil {
			DisplayError(w, err)
		}
	}

	if !args.Quiet {
		c.printSummary()
	}
	return nil
}

func (c *chatState) printWelcome() {
	fmt.Fprintln(c.w, TitleStyle.Render("DevGenius"))
	fmt.Fprintln(c.w, solution.Welcome)
	fmt.Fprintln(c.w, DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	fmt.Fprintln(c.w)
}

func (c *chatState) printSummary() {
	fmt.Fprintln(c.w, Separator(40))
	fmt.Fprintln(c.w, FormatKeyValue("conversation", c.sess.ID))
	fmt.Fprintln(c.w, FormatKeyValue("turns", fmt.Sprint(c.turns)))
	fmt.Fprintln(c.w, FormatKeyValue("artifacts", fmt.Sprint(len(c.sess.Artifacts()))))
	fmt.Fprintln(c.w, FormatKeyValue("duration", time.Since(c.started).Round(time.Second).String()))
}

// converse sends one message. Ctrl+C cancels the reply but not the chat.
func (c *chatState) converse(ctx context.Context, input string) error {
	turnCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	display := newLiveDisplay(c.w, IsStdoutTTY(), GetTerminalWidth(), markdownStyle(c.args.Style))
	reply, err := c.app.Service.Converse(turnCtx, c.sess, input, display)
	if err != nil {
		display.Abort()
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			fmt.Fprintln(c.w, WarningStyle.Render("[Cancelled]"))
			return nil
		}
		return err
	}
	showReply(c.w, display, reply)
	c.lastReply = reply.Text
	c.turns++
	return nil
}

// command runs a slash command and reports whether the chat should end.
func (c *chatState) command(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	rest := fields[1:]

	switch name {
	case "quit", "q", "exit":
		return true, nil
	case "help", "h", "?":
		c.printHelp()
	case "history":
		if len(c.sess.Interactions()) == 0 {
			fmt.Fprintln(c.w, DimStyle.Render("(no messages yet)"))
		} else {
			fmt.Fprintln(c.w, c.sess.Transcript())
		}
	case "generate", "gen", "g":
		if len(rest) == 0 {
			return false, usageErrorf("usage: /generate KIND|all (kinds: %s)", kindList())
		}
		kinds, err := parseKinds(strings.Join(rest, ","))
		if err != nil {
			return false, err
		}
		genCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
		defer cancel()
		return false, generateArtifacts(genCtx, c.app, c.sess, kinds, c.w, c.args.Quiet)
	case "bundle":
		return false, c.bundle(ctx, rest)
	case "export":
		return false, c.export(rest)
	case "feedback", "fb":
		return false, c.feedback(ctx, rest)
	default:
		err := &UnknownCommandError{Name: "/" + name}
		if s := SuggestChatCommand(name); s != "" {
			err.Suggestion = "/" + s
		}
		return false, err
	}
	return false, nil
}

func (c *chatState) printHelp() {
	fmt.Fprintln(c.w, "  /generate KIND|all        "+DimStyle.Render("kinds: "+kindList()))
	fmt.Fprintln(c.w, "  /bundle [FILE]            "+DimStyle.Render("zip transcript and artifacts"))
	fmt.Fprintln(c.w, "  /export [FILE]            "+DimStyle.Render("write the transcript (.html, .md, .json)"))
	fmt.Fprintln(c.w, "  /feedback up|down [TEXT]  "+DimStyle.Render("rate the last reply"))
	fmt.Fprintln(c.w, "  /history                  "+DimStyle.Render("show the conversation"))
	fmt.Fprintln(c.w, "  /quit                     "+DimStyle.Render("exit"))
}

func (c *chatState) bundle(ctx context.Context, rest []string) error {
	data, location, err := c.app.Service.Bundle(ctx, c.sess)
	if err != nil {
		return err
	}
	path := "devgenius-" + c.sess.ID + ".zip"
	if len(rest) > 0 {
		path = rest[0]
	}
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	log.Printf("BUNDLE_SAVED | conversation=%s path=%s bytes=%d", c.sess.ID, path, len(data))
	fmt.Fprintln(c.w, SuccessStyle.Render("Bundle saved"))
	fmt.Fprintln(c.w, FormatKeyValue("file", path))
	fmt.Fprintln(c.w, FormatKeyValue("stored", location))
	return nil
}

func (c *chatState) export(rest []string) error {
	path := "devgenius-" + c.sess.ID + ".html"
	if len(rest) > 0 {
		path = rest[0]
	}
	exporter, err := export.ForPath(path, nil)
	if err != nil {
		return usageErrorf("%v (use .html, .md or .json)", err)
	}
	data, err := exporter.Export(export.FromSession(c.sess, c.app.Service.Options().Model))
	if errors.Is(err, export.ErrEmptyTranscript) {
		return usageErrorf("nothing to export yet")
	}
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	log.Printf("TRANSCRIPT_EXPORTED | conversation=%s path=%s bytes=%d", c.sess.ID, path, len(data))
	fmt.Fprintln(c.w, SuccessStyle.Render("Transcript saved"))
	fmt.Fprintln(c.w, FormatKeyValue("file", path))
	return nil
}

func (c *chatState) feedback(ctx context.Context, rest []string) error {
	if len(rest) == 0 {
		return usageErrorf("usage: /feedback up|down [explanation]")
	}
	if c.lastReply == "" {
		return usageErrorf("nothing to rate yet")
	}
	var positive bool
	switch strings.ToLower(rest[0]) {
	case "up", "+", "good", "yes":
		positive = true
	case "down", "-", "bad", "no":
	default:
		return usageErrorf("feedback must be up or down, got %q", rest[0])
	}
	err := c.app.Service.RecordFeedback(ctx, c.sess, solution.Feedback{
		Positive:    positive,
		Explanation: strings.Join(rest[1:], " "),
		Response:    c.lastReply,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.w, SuccessStyle.Render("Thanks for the feedback."))
	return nil
}

func kindList() string {
	names := make([]string, len(solution.Kinds))
	for i, k := range solution.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
