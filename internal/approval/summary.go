package approval

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// maxSummaryLines bounds the diff preview attached to edit approvals.
const maxSummaryLines = 40

// Summarize renders a human-readable preview of a tool input for the
// approval prompt: the command line for bash, a line diff for edits, the
// target path for other file tools.
func Summarize(toolName string, input map[string]any) string {
	switch toolName {
	case "bash":
		return commandFromInput(input)
	case "edit":
		return editSummary(input)
	case "write":
		if path := pathFromInput(input); path != "" {
			return "write " + path
		}
	default:
		if path := pathFromInput(input); path != "" {
			return path
		}
	}
	return ""
}

func editSummary(input map[string]any) string {
	oldStr, _ := input["old_string"].(string)
	newStr, _ := input["new_string"].(string)
	path := pathFromInput(input)
	if oldStr == "" && newStr == "" {
		return path
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldStr, newStr, true)
	dmp.DiffCleanupSemantic(diffs)

	var sb strings.Builder
	if path != "" {
		fmt.Fprintf(&sb, "%s\n", path)
	}
	lines := 0
	for _, d := range diffs {
		if lines >= maxSummaryLines {
			sb.WriteString("…\n")
			break
		}
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		default:
			prefix = " "
		}
		for _, line := range strings.Split(strings.TrimRight(d.Text, "\n"), "\n") {
			if lines >= maxSummaryLines {
				break
			}
			fmt.Fprintf(&sb, "%s%s\n", prefix, line)
			lines++
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
