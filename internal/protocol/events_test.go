package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orquestra-ai/orquestra/pkg/types"
)

func TestUnmarshalByKind(t *testing.T) {
	tests := []struct {
		name string
		wire string
		want Event
	}{
		{
			name: "status",
			wire: `{"type":"status","correlationId":"c1","permissionMode":"plan","contextUsage":{"inputTokens":1000,"maxTokens":200000}}`,
			want: Status{
				Base:           Base{Correlation: "c1"},
				PermissionMode: types.PermissionPlan,
				ContextUsage:   &types.ContextUsage{InputTokens: 1000, MaxTokens: 200000},
			},
		},
		{
			name: "tool use",
			wire: `{"type":"tool_use","correlationId":"c1","toolUseId":"tu1","name":"bash","input":{"command":"ls"},"timestamp":42}`,
			want: ToolUse{
				Base:      Base{Correlation: "c1"},
				ToolUseID: "tu1",
				Name:      "bash",
				Input:     map[string]any{"command": "ls"},
				Timestamp: 42,
			},
		},
		{
			name: "tool result error",
			wire: `{"type":"tool_result","correlationId":"c1","toolUseId":"tu1","isError":true,"content":"boom","timestamp":43}`,
			want: ToolResult{Base: Base{Correlation: "c1"}, ToolUseID: "tu1", IsError: true, Content: "boom", Timestamp: 43},
		},
		{
			name: "approval request",
			wire: `{"type":"approval_request","correlationId":"c2","approvalId":"a1","toolName":"bash","input":{"command":"rm -rf x"},"memberName":"w1"}`,
			want: ApprovalRequest{
				Base:       Base{Correlation: "c2"},
				ApprovalID: "a1",
				ToolName:   "bash",
				Input:      map[string]any{"command": "rm -rf x"},
				MemberName: "w1",
			},
		},
		{
			name: "ask user",
			wire: `{"type":"ask_user","correlationId":"c2","approvalId":"a2","questions":[{"key":"k","prompt":"p","multiSelect":true}]}`,
			want: AskUser{
				Base:       Base{Correlation: "c2"},
				ApprovalID: "a2",
				Questions:  []types.Question{{Key: "k", Prompt: "p", MultiSelect: true}},
			},
		},
		{
			name: "done",
			wire: `{"type":"done","correlationId":"c1","content":"all set","sessionId":"ext-9","costUsd":0.42}`,
			want: Done{Base: Base{Correlation: "c1"}, Content: "all set", SessionID: "ext-9", CostUSD: 0.42},
		},
		{
			name: "aborted",
			wire: `{"type":"aborted","correlationId":"c1"}`,
			want: Aborted{Base: Base{Correlation: "c1"}},
		},
		{
			name: "subagent done background",
			wire: `{"type":"subagent_done","correlationId":"c1","taskId":"t1","status":"background"}`,
			want: SubagentDone{Base: Base{Correlation: "c1"}, TaskID: "t1", Status: types.SubagentBackground},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unmarshal([]byte(tt.wire))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.CorrelationID(), got.CorrelationID())
		})
	}
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"mystery","correlationId":"c1"}`))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	events := []Event{
		Delta{Base: Base{Correlation: "c1"}, Content: "partial"},
		Aborted{Base: Base{Correlation: "c3"}},
		Error{Base: Base{Correlation: "c4"}, Message: "x", Subtype: SubtypeMaxTurns},
		SubagentStart{Base: Base{Correlation: "c1"}, TaskID: "t1", Description: "review", Background: true},
	}

	for _, ev := range events {
		data, err := Marshal(ev)
		require.NoError(t, err)

		got, err := Unmarshal(data)
		require.NoError(t, err)
		assert.Equal(t, ev, got)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal(Done{}))
	assert.True(t, Terminal(Aborted{}))
	assert.True(t, Terminal(Error{}))
	assert.False(t, Terminal(Delta{}))
	assert.False(t, Terminal(ToolUse{}))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name    string
		subtype string
		raw     string
		want    string
	}{
		{name: "max turns fixed message", subtype: SubtypeMaxTurns, raw: "raw provider junk", want: "Limite de turnos atingido."},
		{name: "max budget fixed message", subtype: SubtypeMaxBudget, raw: "", want: "Limite de custo atingido."},
		{name: "execution fixed message", subtype: SubtypeDuringExecution, raw: "stack trace", want: "Erro durante a execução."},
		{name: "unknown subtype passes raw", subtype: "error_other", raw: "connection reset", want: "connection reset"},
		{name: "empty raw", subtype: "", raw: "", want: "Erro desconhecido."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeError(tt.subtype, tt.raw))
		})
	}
}

func TestNormalizeErrorTruncates(t *testing.T) {
	raw := strings.Repeat("é", 600)
	got := NormalizeError("error_other", raw)
	assert.LessOrEqual(t, len([]rune(got)), 500)
	assert.True(t, strings.HasSuffix(got, "…"))
}
