// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/devgenius/internal/config"
	"github.com/jeranaias/devgenius/internal/llm"
	"github.com/jeranaias/devgenius/internal/llm/llmtest"
	"github.com/jeranaias/devgenius/internal/markdown"
	"github.com/jeranaias/devgenius/internal/solution"
)

// =============================================================================
// ARG PARSER
// =============================================================================

func TestArgParser(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name: "flag with value",
			args: []string{"extract", "--lang", "yaml", "out.md"},
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "yaml", p.Flag("lang"))
				assert.Equal(t, []string{"extract", "out.md"}, p.PositionalFrom(0))
			},
		},
		{
			name: "flag with equals",
			args: []string{"serve", "--port=9000"},
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "9000", p.Flag("port"))
				assert.Equal(t, 1, p.PositionalCount())
			},
		},
		{
			name: "explicit boolean",
			args: []string{"--all=false", "--quiet=true"},
			validate: func(t *testing.T, p *ArgParser) {
				assert.False(t, p.BoolFlag("all"))
				assert.True(t, p.BoolFlag("quiet"))
				assert.True(t, p.HasFlag("all"))
			},
		},
		{
			name: "declared boolean does not consume next arg",
			args: []string{"ask", "-q", "hello", "world"},
			validate: func(t *testing.T, p *ArgParser) {
				assert.True(t, p.BoolFlag("q"))
				assert.Equal(t, "hello world", strings.Join(p.PositionalFrom(1), " "))
			},
		},
		{
			name: "trailing flag is boolean",
			args: []string{"extract", "x.md", "--all"},
			validate: func(t *testing.T, p *ArgParser) {
				assert.True(t, p.BoolFlag("all"))
				assert.Equal(t, "x.md", p.Positional(1))
			},
		},
		{
			name: "double dash ends flags",
			args: []string{"ask", "--", "--not-a-flag", "text"},
			validate: func(t *testing.T, p *ArgParser) {
				assert.False(t, p.HasFlag("not-a-flag"))
				assert.Equal(t, []string{"--not-a-flag", "text"}, p.PositionalFrom(1))
			},
		},
		{
			name: "single dash is positional",
			args: []string{"render", "-"},
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "-", p.Positional(1))
			},
		},
		{
			name: "out of range positional",
			args: []string{},
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "", p.Positional(3))
				assert.Empty(t, p.PositionalFrom(1))
				assert.Equal(t, "dflt", p.FlagOrDefault("missing", "dflt"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewArgParser(tt.args, boolFlagNames...)
			tt.validate(t, p)
		})
	}
}

func TestParsePort(t *testing.T) {
	port, err := ParsePort("8080")
	require.NoError(t, err)
	assert.Equal(t, 8080, port)

	for _, bad := range []string{"", "abc", "0", "70000"} {
		_, err := ParsePort(bad)
		assert.Error(t, err, bad)
	}
}

// =============================================================================
// COMMAND PARSING
// =============================================================================

func TestParseArgs_Commands(t *testing.T) {
	tests := []struct {
		args []string
		want Command
	}{
		{nil, CmdChat},
		{[]string{"chat"}, CmdChat},
		{[]string{"--config", "/tmp/c.toml"}, CmdChat},
		{[]string{"ask", "hi"}, CmdAsk},
		{[]string{"serve"}, CmdServe},
		{[]string{"server"}, CmdServe},
		{[]string{"render", "d.xml"}, CmdRender},
		{[]string{"extract", "a.md"}, CmdExtract},
		{[]string{"version"}, CmdVersion},
		{[]string{"--version"}, CmdVersion},
		{[]string{"help"}, CmdHelp},
		{[]string{"ask", "--help"}, CmdHelp},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			cmd, _, err := ParseArgs(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestParseArgs_Ask(t *testing.T) {
	_, args, err := ParseArgs([]string{"ask", "--config", "c.toml", "--generate", "cost,CFN", "static", "site"})
	require.NoError(t, err)
	assert.Equal(t, "static site", args.Prompt)
	assert.Equal(t, "c.toml", args.ConfigPath)
	assert.Equal(t, []solution.Kind{solution.KindCost, solution.KindCFN}, args.Generate)

	_, args, err = ParseArgs([]string{"ask", "--generate", "all", "x"})
	require.NoError(t, err)
	assert.Equal(t, solution.Kinds, args.Generate)

	_, _, err = ParseArgs([]string{"ask", "--generate", "pricing", "x"})
	assert.ErrorIs(t, err, solution.ErrUnknownKind)
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, _, err = ParseArgs([]string{"ask"})
	var usage *UsageError
	assert.ErrorAs(t, err, &usage)
}

func TestParseArgs_ImageAndTopic(t *testing.T) {
	cmd, args, err := ParseArgs([]string{"--image", "current.png"})
	require.NoError(t, err)
	assert.Equal(t, CmdChat, cmd)
	assert.Equal(t, "current.png", args.Image)

	cmd, args, err = ParseArgs([]string{"ask", "--topic", "Data Lake"})
	require.NoError(t, err)
	assert.Equal(t, CmdAsk, cmd)
	assert.Equal(t, "Data Lake", args.Topic)
	assert.Empty(t, args.Prompt)

	_, _, err = ParseArgs([]string{"ask", "--topic", "mainframe"})
	assert.ErrorIs(t, err, solution.ErrUnknownTopic)
	assert.Contains(t, err.Error(), "data-lake, log-analytics")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, _, err = ParseArgs([]string{"--image", "a.png", "--topic", "data-lake"})
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestParseArgs_ServeAndFiles(t *testing.T) {
	_, args, err := ParseArgs([]string{"serve", "--port", "9001"})
	require.NoError(t, err)
	assert.Equal(t, 9001, args.Port)

	_, _, err = ParseArgs([]string{"serve", "--port", "http"})
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, args, err = ParseArgs([]string{"render", "d.xml", "-o", "d.html"})
	require.NoError(t, err)
	assert.Equal(t, "d.xml", args.File)
	assert.Equal(t, "d.html", args.Output)

	_, args, err = ParseArgs([]string{"extract", "--lang", "yaml", "--all", "a.md"})
	require.NoError(t, err)
	assert.Equal(t, "a.md", args.File)
	assert.Equal(t, "yaml", args.Lang)
	assert.True(t, args.All)

	_, _, err = ParseArgs([]string{"extract"})
	assert.Error(t, err)
}

func TestParseArgs_UnknownCommandSuggests(t *testing.T) {
	cmd, _, err := ParseArgs([]string{"chta"})
	assert.Equal(t, CmdHelp, cmd)
	var unknown *UnknownCommandError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "chat", unknown.Suggestion)
	assert.Contains(t, err.Error(), `did you mean "chat"`)
}

func TestSuggestCommand(t *testing.T) {
	assert.Equal(t, "serve", SuggestCommand("serv"))
	assert.Equal(t, "extract", SuggestCommand("extarct"))
	assert.Equal(t, "", SuggestCommand("ask"))
	assert.Equal(t, "", SuggestCommand("x"))
	assert.Equal(t, "", SuggestCommand("kubernetes"))
	assert.Equal(t, "generate", SuggestChatCommand("generat"))
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshteinDistance("chat", "chat"))
	assert.Equal(t, 3, levenshteinDistance("", "ask"))
	assert.Equal(t, 2, levenshteinDistance("hepl", "help"))
	assert.Equal(t, 3, levenshteinDistance("kitten", "sitting"))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{usageErrorf("bad"), ExitUsageError},
		{&UnknownCommandError{Name: "x"}, ExitUsageError},
		{fmt.Errorf("%w: boom", errConfig), ExitConfigError},
		{config.ValidateErrors{{Field: "server.port", Message: "out of range"}}, ExitConfigError},
		{commandError("extract", "find", markdown.ErrNotFound), ExitNotFound},
		{solution.ErrNoSolution, ExitNotFound},
		{context.DeadlineExceeded, ExitTimeout},
		{llm.ErrRateLimited, ExitNetworkError},
		{&llm.TransportError{Status: 500, Message: "down"}, ExitNetworkError},
		{errors.New("other"), ExitGeneralError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}

// =============================================================================
// LIVE DISPLAY
// =============================================================================

func TestVisualLines(t *testing.T) {
	assert.Equal(t, 1, visualLines("", 80))
	assert.Equal(t, 1, visualLines("hello", 80))
	assert.Equal(t, 3, visualLines("a\n\nb", 80))
	assert.Equal(t, 2, visualLines(strings.Repeat("x", 81), 80))
	// Wide runes take two columns.
	assert.Equal(t, 2, visualLines(strings.Repeat("界", 41), 80))
}

func TestLiveDisplay_NoTTYPrintsOnce(t *testing.T) {
	var buf bytes.Buffer
	d := newLiveDisplay(&buf, false, 80, "notty")
	d.Update("Hel")
	d.Update("Hello")
	assert.Empty(t, buf.String())

	d.Finish("Hello")
	assert.Equal(t, "Hello\n", buf.String())
}

func TestLiveDisplay_TTYStreamsDeltas(t *testing.T) {
	var buf bytes.Buffer
	d := newLiveDisplay(&buf, true, 80, "notty")
	d.Update("Use ")
	d.Update("Use S3")
	assert.Equal(t, "Use S3", buf.String())

	// A restarted stream erases what was shown.
	d.Update("Try")
	assert.Contains(t, buf.String(), "\x1b[2K")
	assert.True(t, strings.HasSuffix(buf.String(), "\rTry"))

	d.Abort()
	assert.True(t, strings.HasSuffix(buf.String(), "Try\n"))
}

// =============================================================================
// COMMANDS
// =============================================================================

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &buf, &buf
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return &buf
}

func newTestApp(t *testing.T, steps ...llmtest.Step) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Model.APIKey = "test-key"
	cfg.Storage.DataDir = filepath.Join(dir, "artifacts")
	cfg.Storage.LedgerPath = filepath.Join(dir, "ledger.db")
	cfg.Retry.MaxAttempts = 1

	app, err := newAppWithTransport(cfg, llmtest.New(steps...))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestServiceOptions_MapsConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Model.ID = "m-1"
	cfg.AWS.Region = "eu-west-1"
	cfg.Continuation.MaxRounds = 2

	o := ServiceOptions(cfg)
	assert.Equal(t, "m-1", o.Model)
	assert.Equal(t, "eu-west-1", o.Region)
	assert.Equal(t, 2, o.MaxRounds)
	assert.Equal(t, cfg.Retry.MaxAttempts, o.Retry.MaxAttempts)
	assert.Equal(t, cfg.Retry.BaseDelay.Duration, o.Retry.BaseDelay)
}

func TestNewTransport(t *testing.T) {
	cfg := config.Default()
	for _, p := range []string{"anthropic", "http"} {
		cfg.Model.Provider = p
		tr, err := NewTransport(cfg)
		require.NoError(t, err, p)
		assert.NotNil(t, tr)
	}

	cfg.Model.Provider = "bedrock"
	_, err := NewTransport(cfg)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestRunAsk_RepliesAndGenerates(t *testing.T) {
	buf := captureOutput(t)
	app := newTestApp(t,
		llmtest.Reply("Use S3 with CloudFront.", llm.StopReasonEndTurn),
		llmtest.Reply("| Service | Cost |\n|---|---|\n| S3 | $1 |", llm.StopReasonEndTurn),
	)

	err := runAsk(context.Background(), app, Args{
		Prompt:   "static site",
		Generate: []solution.Kind{solution.KindCost},
	}, buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Use S3 with CloudFront.")
	assert.Contains(t, out, "Cost Analysis")
	assert.Contains(t, out, "conversation ")

	keys, err := app.Artifacts.List("")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "/cost-")
	assert.Equal(t, 0, app.Sessions.Len())
}

func TestRunAsk_Topic(t *testing.T) {
	buf := captureOutput(t)
	app := newTestApp(t, llmtest.Reply("Ship logs with **Kinesis Data Firehose**.", llm.StopReasonMaxTokens))

	require.NoError(t, runAsk(context.Background(), app, Args{Topic: "log-analytics"}, buf))
	out := buf.String()
	assert.Contains(t, out, "How can I build a log analytics solution on AWS?")
	assert.Contains(t, out, "Kinesis Data Firehose")
	assert.Contains(t, out, solution.TruncatedWarning)
}

func TestRunAsk_BadImage(t *testing.T) {
	buf := captureOutput(t)
	app := newTestApp(t)
	path := filepath.Join(t.TempDir(), "notes.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0600))

	err := runAsk(context.Background(), app, Args{Image: path}, buf)
	assert.ErrorIs(t, err, solution.ErrInvalidImage)
	assert.Equal(t, ExitUsageError, ExitCode(err))

	err = runAsk(context.Background(), app, Args{Image: filepath.Join(t.TempDir(), "missing.png")}, buf)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunAsk_GenerationFailureIsReported(t *testing.T) {
	buf := captureOutput(t)
	app := newTestApp(t,
		llmtest.Reply("Use CloudFormation.", llm.StopReasonEndTurn),
		llmtest.Reply("no template here", llm.StopReasonEndTurn),
	)

	err := runAsk(context.Background(), app, Args{
		Prompt:   "stack",
		Generate: []solution.Kind{solution.KindCFN},
	}, buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 artifacts failed")
	assert.Contains(t, buf.String(), "CloudFormation Template")
	assert.Contains(t, buf.String(), solution.GenericFailure)
}

func TestRunAsk_TransportFailure(t *testing.T) {
	buf := captureOutput(t)
	app := newTestApp(t, llmtest.Fail(&llm.TransportError{Status: 400, Message: "bad request"}))

	err := runAsk(context.Background(), app, Args{Prompt: "x"}, buf)
	require.Error(t, err)
	assert.Equal(t, ExitNetworkError, ExitCode(err))
}

type scriptedInput struct {
	lines   []string
	history []string
}

func (s *scriptedInput) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedInput) AppendHistory(item string) {
	s.history = append(s.history, item)
}

func TestRunChat_Session(t *testing.T) {
	buf := captureOutput(t)
	bundlePath := filepath.Join(t.TempDir(), "out.zip")
	app := newTestApp(t,
		llmtest.Reply("Host it on S3 behind CloudFront.", llm.StopReasonEndTurn),
		llmtest.Reply("```yaml\nResources: {}\n```", llm.StopReasonEndTurn),
	)
	in := &scriptedInput{lines: []string{
		"/generate cost",
		"Design a static website",
		"",
		"/generate cfn",
		"/feedback down",
		"/feedback up",
		"/history",
		"/bundel",
		"/bundle " + bundlePath,
		"/quit",
		"never read",
	}}

	require.NoError(t, runChat(context.Background(), app, Args{}, in, buf))
	out := buf.String()

	assert.Contains(t, out, solution.Welcome)
	assert.Contains(t, out, solution.ErrNoSolution.Error())
	assert.Contains(t, out, "Host it on S3 behind CloudFront.")
	assert.Contains(t, out, "CloudFormation Template")
	assert.Contains(t, out, "https://console.aws.amazon.com/cloudformation/home?region=us-west-2")
	assert.Contains(t, out, "feedback explanation is required")
	assert.Contains(t, out, "Thanks for the feedback.")
	assert.Contains(t, out, "## Details")
	assert.Contains(t, out, `did you mean "/bundle"`)
	assert.Contains(t, out, "Bundle saved")
	assert.Equal(t, []string{"never read"}, in.lines)
	assert.NotContains(t, in.history, "")

	zr, err := zip.OpenReader(bundlePath)
	require.NoError(t, err)
	defer zr.Close()
	var transcript bool
	for _, f := range zr.File {
		transcript = transcript || strings.HasSuffix(f.Name, "/transcript.md")
	}
	assert.True(t, transcript)
}

func TestRunChat_Export(t *testing.T) {
	buf := captureOutput(t)
	dir := t.TempDir()
	mdPath := filepath.Join(dir, "talk.md")
	app := newTestApp(t, llmtest.Reply("Use **DynamoDB**.", llm.StopReasonEndTurn))
	in := &scriptedInput{lines: []string{
		"/export " + mdPath,
		"Design a leaderboard",
		"/export " + filepath.Join(dir, "talk.pdf"),
		"/export " + mdPath,
		"/quit",
	}}

	require.NoError(t, runChat(context.Background(), app, Args{Quiet: true}, in, buf))
	out := buf.String()
	assert.Contains(t, out, "nothing to export yet")
	assert.Contains(t, out, "unknown export format")
	assert.Contains(t, out, "Transcript saved")

	data, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## Details")
	assert.Contains(t, string(data), "Use **DynamoDB**.")
}

func TestRunChat_Image(t *testing.T) {
	buf := captureOutput(t)
	path := filepath.Join(t.TempDir(), "current.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0600))
	app := newTestApp(t,
		llmtest.Reply("The diagram shows **Amazon EC2** behind an ALB.", llm.StopReasonEndTurn),
		llmtest.Reply("Move the instances into an Auto Scaling group.", llm.StopReasonEndTurn),
	)
	in := &scriptedInput{lines: []string{
		"How do I make it highly available?",
		"/feedback up",
		"/quit",
	}}

	require.NoError(t, runChat(context.Background(), app, Args{Image: path}, in, buf))
	out := buf.String()
	assert.Contains(t, out, "Analyzing "+path)
	assert.Contains(t, out, "Amazon EC2")
	assert.Contains(t, out, "Auto Scaling group")
	assert.Contains(t, out, FormatKeyValue("turns", "2"))

	keys, err := app.Artifacts.List("")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, strings.HasSuffix(keys[0], "/uploaded_file/current.png"))
}

func TestRunChat_EOFEnds(t *testing.T) {
	buf := captureOutput(t)
	app := newTestApp(t)
	require.NoError(t, runChat(context.Background(), app, Args{Quiet: true}, &scriptedInput{}, buf))
	assert.NotContains(t, buf.String(), "turns")
}

func TestCompleteChatCommand(t *testing.T) {
	assert.Equal(t, []string{"/bundle"}, completeChatCommand("/bu"))
	assert.Contains(t, completeChatCommand("/generate c"), "/generate cost")
	assert.Contains(t, completeChatCommand("/generate c"), "/generate cdk")
	assert.Nil(t, completeChatCommand("hello"))
}

func TestHandleRender(t *testing.T) {
	captureOutput(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "answer.md")
	out := filepath.Join(dir, "diagram.html")
	require.NoError(t, os.WriteFile(in, []byte("Diagram:\n```xml\n<mxGraphModel><root/></mxGraphModel>\n```\n"), 0644))

	require.NoError(t, HandleRender(Args{File: in, Output: out, Quiet: true}))
	page, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(page), "viewer.min.js")
	assert.Contains(t, string(page), "&lt;mxGraphModel&gt;")
}

func TestHandleRender_RejectsHostileXML(t *testing.T) {
	captureOutput(t)
	in := filepath.Join(t.TempDir(), "d.xml")
	require.NoError(t, os.WriteFile(in, []byte(`<!DOCTYPE x [<!ENTITY e SYSTEM "file:///etc/passwd">]><x>&e;</x>`), 0644))
	assert.Error(t, HandleRender(Args{File: in}))
}

func TestHandleExtract(t *testing.T) {
	buf := captureOutput(t)
	in := filepath.Join(t.TempDir(), "cfn.md")
	require.NoError(t, os.WriteFile(in, []byte("Intro\n```yaml\nA: 1\n```\n\n```yaml\nB: 2\n```\n"), 0644))

	require.NoError(t, HandleExtract(Args{File: in, Lang: "yaml"}))
	assert.Equal(t, "A: 1\n", buf.String())

	buf.Reset()
	require.NoError(t, HandleExtract(Args{File: in, Lang: "yaml", All: true}))
	assert.Equal(t, "A: 1\n\nB: 2\n", buf.String())

	err := HandleExtract(Args{File: in, Lang: "xml"})
	assert.ErrorIs(t, err, markdown.ErrNotFound)
}

func TestReadInput_Stdin(t *testing.T) {
	old := stdin
	stdin = strings.NewReader("from stdin")
	t.Cleanup(func() { stdin = old })

	got, err := readInput("-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)
}

func TestHandleVersion(t *testing.T) {
	buf := captureOutput(t)
	require.NoError(t, HandleVersion(Args{Quiet: true}))
	assert.Equal(t, Version+"\n", buf.String())
}
