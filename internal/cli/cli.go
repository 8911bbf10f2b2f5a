// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/jeranaias/devgenius/internal/solution"
)

// Version information (overridden at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdServe
	CmdRender
	CmdExtract
	CmdVersion
	CmdHelp
)

var commandNames = map[string]Command{
	"chat":    CmdChat,
	"ask":     CmdAsk,
	"serve":   CmdServe,
	"server":  CmdServe,
	"render":  CmdRender,
	"extract": CmdExtract,
	"version": CmdVersion,
	"help":    CmdHelp,
}

// Args holds parsed CLI arguments.
type Args struct {
	ConfigPath string
	Quiet      bool
	Verbose    bool

	// Prompt is the question for ask.
	Prompt string
	// File is the input file for render and extract.
	File string
	// Output is where render writes HTML instead of stdout.
	Output string
	// Lang selects the fenced block for extract.
	Lang string
	All  bool

	// Generate lists the artifacts ask produces after replying.
	Generate []solution.Kind

	// Image is an existing architecture diagram to analyze first.
	Image string
	// Topic names a preset opening question.
	Topic string

	Port  int
	Name  string
	Email string

	// Style is the glamour style for terminal output ("" = auto).
	Style string

	Raw []string
}

var boolFlagNames = []string{"q", "quiet", "v", "verbose", "all", "h", "help", "version"}

// Parse parses os.Args.
func Parse() (Command, Args, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses argv (without the program name). With no command it
// starts a chat.
func ParseArgs(argv []string) (Command, Args, error) {
	p := NewArgParser(argv, boolFlagNames...)
	args := Args{
		ConfigPath: p.Flag("config"),
		Quiet:      p.BoolFlag("q") || p.BoolFlag("quiet"),
		Verbose:    p.BoolFlag("v") || p.BoolFlag("verbose"),
		Output:     p.FlagOrDefault("o", p.Flag("out")),
		Lang:       p.Flag("lang"),
		All:        p.BoolFlag("all"),
		Name:       p.Flag("name"),
		Email:      p.Flag("email"),
		Style:      p.Flag("style"),
		Image:      p.Flag("image"),
		Topic:      p.Flag("topic"),
		Raw:        argv,
	}

	if p.BoolFlag("h") || p.BoolFlag("help") {
		return CmdHelp, args, nil
	}
	if p.BoolFlag("version") {
		return CmdVersion, args, nil
	}
	if args.Image != "" && args.Topic != "" {
		return CmdHelp, args, usageErrorf("--image and --topic cannot be combined")
	}
	if args.Topic != "" {
		if _, err := solution.TopicQuestion(args.Topic); err != nil {
			return CmdHelp, args, usageErrorf("%v (topics: %s)", err, topicList())
		}
	}
	if p.PositionalCount() == 0 {
		return CmdChat, args, nil
	}

	name := strings.ToLower(p.Positional(0))
	cmd, ok := commandNames[name]
	if !ok {
		return CmdHelp, args, &UnknownCommandError{Name: name, Suggestion: SuggestCommand(name)}
	}

	switch cmd {
	case CmdAsk:
		args.Prompt = strings.Join(p.PositionalFrom(1), " ")
		if args.Prompt == "" && args.Image == "" && args.Topic == "" {
			return cmd, args, usageErrorf("ask requires a prompt, --image or --topic")
		}
		if g := p.Flag("generate"); g != "" {
			kinds, err := parseKinds(g)
			if err != nil {
				return cmd, args, err
			}
			args.Generate = kinds
		}
	case CmdServe:
		if p.HasFlag("port") {
			port, err := ParsePort(p.Flag("port"))
			if err != nil {
				return cmd, args, usageErrorf("%v", err)
			}
			args.Port = port
		}
	case CmdRender, CmdExtract:
		args.File = p.Positional(1)
		if args.File == "" {
			return cmd, args, usageErrorf("%s requires a file (use - for stdin)", name)
		}
	}
	return cmd, args, nil
}

func topicList() string {
	names := make([]string, 0, len(solution.Topics()))
	for _, t := range solution.Topics() {
		names = append(names, t.Name)
	}
	return strings.Join(names, ", ")
}

// parseKinds parses a comma-separated kind list; "all" expands to every kind.
func parseKinds(s string) ([]solution.Kind, error) {
	if strings.EqualFold(strings.TrimSpace(s), "all") {
		return append([]solution.Kind(nil), solution.Kinds...), nil
	}
	var kinds []solution.Kind
	for _, part := range strings.Split(s, ",") {
		k, err := solution.ParseKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

const usageText = `devgenius - AWS solution design assistant

Usage:
  devgenius [chat]               Interactive design conversation (default)
  devgenius ask "prompt"         Ask a single question
  devgenius serve                Run the HTTP API
  devgenius render FILE.xml      Render a draw.io diagram to HTML
  devgenius extract FILE.md      Print the first fenced code block
  devgenius version              Show version information
  devgenius help                 Show this help

Global flags:
  --config PATH                  Config file (default: ~/.devgenius/config.toml)
  -q, --quiet                    Minimal output
  -v, --verbose                  Verbose output
  --style NAME                   Terminal markdown style (dark, light, notty)

Chat and ask:
  --image FILE                   Start from an existing architecture diagram
                                 (png, jpeg, gif or webp, up to 5 MB)
  --topic NAME                   Start from a preset topic (data-lake, log-analytics)
  --name NAME --email EMAIL      Recorded with the conversation

Ask:
  --generate KINDS               Generate artifacts after the reply
                                 (comma-separated, or "all")

Serve:
  --port N                       Listen port (overrides config)

Render:
  -o, --out FILE                 Write the HTML to FILE

Extract:
  --lang LANG                    Only blocks tagged LANG (e.g. yaml, xml)
  --all                          Print every matching block

Chat commands:
  /generate KIND|all             Generate artifacts from the conversation
  /bundle [FILE]                 Save all artifacts as a zip
  /export [FILE]                 Write the transcript (.html, .md or .json)
  /feedback up|down [TEXT]       Rate the last reply
  /history                       Show the conversation so far
  /help                          Show chat commands
  /quit                          Exit

Artifact kinds: cost, architecture, cdk, cfn, documentation
`

// PrintUsage writes the help text to w.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// HandleHelp prints usage to stdout.
func HandleHelp(args Args) error {
	PrintUsage(stdout)
	return nil
}

// HandleVersion prints build information.
func HandleVersion(args Args) error {
	if args.Quiet {
		fmt.Fprintln(stdout, Version)
		return nil
	}
	fmt.Fprintf(stdout, "devgenius %s\n", Version)
	fmt.Fprintf(stdout, "  commit:  %s\n", GitCommit)
	fmt.Fprintf(stdout, "  built:   %s\n", BuildDate)
	fmt.Fprintf(stdout, "  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}
