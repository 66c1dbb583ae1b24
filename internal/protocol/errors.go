package protocol

// Error subtypes with fixed user-facing messages. Raw payloads for these
// subtypes are never passed through.
const (
	SubtypeMaxTurns        = "error_max_turns"
	SubtypeMaxBudget       = "error_max_budget"
	SubtypeDuringExecution = "error_during_execution"
)

// maxErrorRunes bounds raw error messages surfaced to the user.
const maxErrorRunes = 500

// NormalizeError maps an error event to the message recorded on the
// session. Known subtypes map to fixed messages regardless of payload;
// anything else surfaces the raw message, truncated.
func NormalizeError(subtype, raw string) string {
	switch subtype {
	case SubtypeMaxTurns:
		return "Limite de turnos atingido."
	case SubtypeMaxBudget:
		return "Limite de custo atingido."
	case SubtypeDuringExecution:
		return "Erro durante a execução."
	}
	if raw == "" {
		return "Erro desconhecido."
	}
	return truncate(raw, maxErrorRunes)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
