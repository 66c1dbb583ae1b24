package approval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orquestra-ai/orquestra/internal/runner"
	"github.com/orquestra-ai/orquestra/internal/storage"
	"github.com/orquestra-ai/orquestra/pkg/types"
)

func newMediator(t *testing.T) (*Mediator, *runner.Fake, *storage.Storage) {
	t.Helper()
	store := storage.New(t.TempDir())
	fake := runner.NewFake()
	m, err := NewMediator(context.Background(), store, fake)
	require.NoError(t, err)
	return m, fake, store
}

func TestMatchRules(t *testing.T) {
	rules := []Rule{
		{ID: "1", ToolName: "bash", Pattern: "git *"},
		{ID: "2", ToolName: "bash", Pattern: "ls *"},
		{ID: "3", ToolName: "edit", Pattern: "src/**/*.go"},
		{ID: "4", ToolName: "webfetch", Pattern: "*"},
	}

	tests := []struct {
		name  string
		tool  string
		input map[string]any
		want  bool
	}{
		{name: "bash covered", tool: "bash", input: map[string]any{"command": "git status"}, want: true},
		{name: "bash compound fully covered", tool: "bash", input: map[string]any{"command": "git add . && ls -la"}, want: true},
		{name: "bash compound partially covered", tool: "bash", input: map[string]any{"command": "git add . && rm -rf /"}, want: false},
		{name: "bash uncovered", tool: "bash", input: map[string]any{"command": "curl example.com"}, want: false},
		{name: "edit glob match", tool: "edit", input: map[string]any{"file_path": "src/core/session.go"}, want: true},
		{name: "edit glob miss", tool: "edit", input: map[string]any{"file_path": "docs/readme.md"}, want: false},
		{name: "generic wildcard", tool: "webfetch", input: map[string]any{"url": "https://x"}, want: true},
		{name: "tool without rule", tool: "task", input: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchRules(rules, tt.tool, tt.input))
		})
	}
}

func TestDeriveRules(t *testing.T) {
	bash := DeriveRules("bash", map[string]any{"command": "cd /tmp && git commit -m x && git commit --amend"})
	var patterns []string
	for _, r := range bash {
		patterns = append(patterns, r.Pattern)
	}
	// cd is skipped and duplicate prefixes collapse.
	assert.Equal(t, []string{"git commit *"}, patterns)

	edit := DeriveRules("edit", map[string]any{"file_path": "main.go"})
	require.Len(t, edit, 1)
	assert.Equal(t, "main.go", edit[0].Pattern)

	other := DeriveRules("webfetch", map[string]any{"url": "https://x"})
	require.Len(t, other, 1)
	assert.Equal(t, "*", other[0].Pattern)
}

func TestAutoResolveMatchSendsAllow(t *testing.T) {
	m, fake, _ := newMediator(t)
	ctx := context.Background()

	_, err := m.AddRule(ctx, "bash", "git *")
	require.NoError(t, err)

	input := map[string]any{"command": "git status"}
	resolved, err := m.AutoResolve(ctx, "appr-1", "bash", input)
	require.NoError(t, err)
	assert.True(t, resolved)

	require.Len(t, fake.Responds, 1)
	assert.Equal(t, "appr-1", fake.Responds[0].ApprovalID)
	assert.Equal(t, runner.BehaviorAllow, fake.Responds[0].Response.Behavior)
	assert.Equal(t, input, fake.Responds[0].Response.UpdatedInput)
}

func TestAutoResolveNoMatch(t *testing.T) {
	m, fake, _ := newMediator(t)

	resolved, err := m.AutoResolve(context.Background(), "appr-1", "bash", map[string]any{"command": "rm -rf /"})
	require.NoError(t, err)
	assert.False(t, resolved)
	assert.Empty(t, fake.Responds)
}

func TestAllowAlwaysPersistsAcrossMediators(t *testing.T) {
	store := storage.New(t.TempDir())
	fake := runner.NewFake()
	ctx := context.Background()

	m1, err := NewMediator(ctx, store, fake)
	require.NoError(t, err)

	input := map[string]any{"command": "npm install left-pad"}
	require.NoError(t, m1.AllowAlways(ctx, "appr-1", "bash", input))
	require.Len(t, fake.Responds, 1)

	// A fresh mediator over the same storage must auto-resolve the
	// identical request without ever surfacing it.
	m2, err := NewMediator(ctx, store, fake)
	require.NoError(t, err)

	resolved, err := m2.AutoResolve(ctx, "appr-2", "bash", input)
	require.NoError(t, err)
	assert.True(t, resolved)
	require.Len(t, fake.Responds, 2)
}

func TestDenySendsFixedReason(t *testing.T) {
	m, fake, _ := newMediator(t)

	require.NoError(t, m.Deny(context.Background(), "appr-1"))
	require.Len(t, fake.Responds, 1)
	assert.Equal(t, runner.BehaviorDeny, fake.Responds[0].Response.Behavior)
	assert.Equal(t, DenyReason, fake.Responds[0].Response.Message)
}

func TestAnswerPayload(t *testing.T) {
	m, fake, _ := newMediator(t)

	answers := map[string]string{"scope": "all", "confirm": "yes"}
	require.NoError(t, m.Answer(context.Background(), "appr-3", answers))

	require.Len(t, fake.Responds, 1)
	resp := fake.Responds[0].Response
	assert.Equal(t, runner.BehaviorAllow, resp.Behavior)
	assert.Equal(t, map[string]any{"scope": "all", "confirm": "yes"}, resp.UpdatedInput)
}

func TestValidateAnswers(t *testing.T) {
	q := &types.UserQuestion{
		ID: "appr-4",
		Questions: []types.Question{
			{Key: "scope", Prompt: "Which?", MultiSelect: true},
			{Key: "confirm", Prompt: "Sure?"},
		},
	}

	err := ValidateAnswers(q, map[string]string{"scope": "all"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confirm")

	assert.NoError(t, ValidateAnswers(q, map[string]string{"scope": "all", "confirm": "yes"}))
}

func TestRuleAdministration(t *testing.T) {
	m, _, _ := newMediator(t)
	ctx := context.Background()

	r1, err := m.AddRule(ctx, "bash", "git *")
	require.NoError(t, err)
	_, err = m.AddRule(ctx, "edit", "**/*.md")
	require.NoError(t, err)
	require.Len(t, m.Rules(), 2)

	require.NoError(t, m.RemoveRule(ctx, r1.ID))
	require.Len(t, m.Rules(), 1)
	assert.Equal(t, "edit", m.Rules()[0].ToolName)

	assert.ErrorIs(t, m.RemoveRule(ctx, "missing"), storage.ErrNotFound)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "git status", Summarize("bash", map[string]any{"command": "git status"}))
	assert.Equal(t, "write notes.txt", Summarize("write", map[string]any{"file_path": "notes.txt"}))

	diff := Summarize("edit", map[string]any{
		"file_path":  "main.go",
		"old_string": "return nil",
		"new_string": "return err",
	})
	assert.True(t, strings.HasPrefix(diff, "main.go"))
	assert.Contains(t, diff, "-")
	assert.Contains(t, diff, "+")
}
