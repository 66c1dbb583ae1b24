package approval

import (
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/oklog/ulid/v2"
)

// Rule is one persisted auto-allow entry, keyed by tool name plus an
// input-derived discriminator: a command prefix for bash, a path glob for
// file tools, "*" otherwise.
type Rule struct {
	ID       string `json:"id"`
	ToolName string `json:"toolName"`
	Pattern  string `json:"pattern"`
	Created  int64  `json:"created"`
}

// Tools whose discriminator is a file path glob.
var pathTools = map[string]bool{
	"edit":  true,
	"write": true,
	"read":  true,
}

func pathFromInput(input map[string]any) string {
	for _, key := range []string{"file_path", "path"} {
		if v, ok := input[key].(string); ok {
			return v
		}
	}
	return ""
}

func commandFromInput(input map[string]any) string {
	v, _ := input["command"].(string)
	return v
}

// ruleMatches reports whether a single rule covers the request input.
func ruleMatches(r Rule, toolName string, input map[string]any) bool {
	if r.ToolName != toolName {
		return false
	}

	switch {
	case toolName == "bash":
		cmds, err := ParseCommands(commandFromInput(input))
		if err != nil || len(cmds) == 0 {
			return false
		}
		// A single rule must cover every invocation on the line; a
		// compound "git status && rm -rf /" never rides on "git *".
		for _, cmd := range cmds {
			if !cmd.MatchesPattern(r.Pattern) {
				return false
			}
		}
		return true

	case pathTools[toolName]:
		path := pathFromInput(input)
		if path == "" {
			return false
		}
		ok, err := doublestar.Match(r.Pattern, path)
		return err == nil && ok

	default:
		return r.Pattern == "*"
	}
}

// matchRules reports whether the rule set auto-allows the request. For
// compound bash lines each invocation may be covered by a different rule.
func matchRules(rules []Rule, toolName string, input map[string]any) bool {
	if toolName == "bash" {
		cmds, err := ParseCommands(commandFromInput(input))
		if err != nil || len(cmds) == 0 {
			return false
		}
		for _, cmd := range cmds {
			covered := false
			for _, r := range rules {
				if r.ToolName == "bash" && cmd.MatchesPattern(r.Pattern) {
					covered = true
					break
				}
			}
			if !covered {
				return false
			}
		}
		return true
	}

	for _, r := range rules {
		if ruleMatches(r, toolName, input) {
			return true
		}
	}
	return false
}

// DeriveRules builds the rules persisted by an always-allow decision.
func DeriveRules(toolName string, input map[string]any) []Rule {
	now := time.Now().UnixMilli()

	switch {
	case toolName == "bash":
		cmds, err := ParseCommands(commandFromInput(input))
		if err != nil || len(cmds) == 0 {
			return nil
		}
		seen := make(map[string]bool)
		var rules []Rule
		for _, cmd := range cmds {
			// cd only moves the working directory; persisting it
			// would widen every compound command.
			if cmd.Name == "cd" {
				continue
			}
			prefix := cmd.Prefix()
			if seen[prefix] {
				continue
			}
			seen[prefix] = true
			rules = append(rules, Rule{ID: ulid.Make().String(), ToolName: toolName, Pattern: prefix, Created: now})
		}
		return rules

	case pathTools[toolName]:
		path := pathFromInput(input)
		if path == "" {
			return nil
		}
		return []Rule{{ID: ulid.Make().String(), ToolName: toolName, Pattern: path, Created: now}}

	default:
		return []Rule{{ID: ulid.Make().String(), ToolName: toolName, Pattern: "*", Created: now}}
	}
}
