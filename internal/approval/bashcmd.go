package approval

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Command is one parsed shell invocation from a bash tool input.
type Command struct {
	Name       string   // command name, e.g. "git"
	Args       []string // remaining words
	Subcommand string   // first non-flag argument, e.g. "commit"
}

// ParseCommands parses a shell command line into its individual
// invocations, including those behind pipes, && and ;.
func ParseCommands(command string) ([]Command, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}

	var commands []Command
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})
	return commands, nil
}

func extractCommand(call *syntax.CallExpr) *Command {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &Command{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		s := wordToString(arg)
		cmd.Args = append(cmd.Args, s)
		if cmd.Subcommand == "" && !strings.HasPrefix(s, "-") {
			cmd.Subcommand = s
		}
	}
	return cmd
}

func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			// Dynamic content; never matches a persisted prefix.
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// Prefix derives the persistable rule pattern for a command:
// "git commit -m x" becomes "git commit *", "ls -la" becomes "ls *".
func (c Command) Prefix() string {
	if c.Subcommand != "" {
		return c.Name + " " + c.Subcommand + " *"
	}
	return c.Name + " *"
}

// MatchesPattern reports whether the command matches a rule pattern.
// Patterns are space-separated tokens where a trailing "*" matches any
// remaining arguments: "git commit *", "git *", "ls", "*".
func (c Command) MatchesPattern(pattern string) bool {
	parts := strings.Fields(pattern)
	if len(parts) == 0 {
		return false
	}
	if len(parts) == 1 && parts[0] == "*" {
		return true
	}

	tokens := append([]string{c.Name}, c.Args...)

	if parts[len(parts)-1] == "*" {
		prefix := parts[:len(parts)-1]
		if len(prefix) > len(tokens) {
			return false
		}
		for i, p := range prefix {
			if p != "*" && p != tokens[i] {
				return false
			}
		}
		return true
	}

	if len(parts) != len(tokens) {
		return false
	}
	for i, p := range parts {
		if p != "*" && p != tokens[i] {
			return false
		}
	}
	return true
}
