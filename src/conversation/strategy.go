package conversation

import (
	"context"
	"strings"
)

// ContextStrategy renders earlier utterances for a generative prompt.
type ContextStrategy interface {
	BuildContext(history []string, current string) string
	GetMaxTurns() int
}

// NLUContextStrategy keeps the last maxTurns utterances.
type NLUContextStrategy struct {
	maxTurns int
}

func NewNLUContextStrategy(maxTurns int) *NLUContextStrategy {
	if maxTurns <= 0 {
		maxTurns = 5
	}
	return &NLUContextStrategy{maxTurns: maxTurns}
}

func (s *NLUContextStrategy) GetMaxTurns() int {
	return s.maxTurns
}

// BuildContext returns current unchanged when there is no history.
func (s *NLUContextStrategy) BuildContext(history []string, current string) string {
	recent := trimTail(history, s.maxTurns)
	if len(recent) == 0 {
		return current
	}

	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, msg := range recent {
		b.WriteString("UserMessage(" + msg + ")\n")
	}
	b.WriteString("</conversation_context>\n")
	b.WriteString("<current_message_to_analyze>\n")
	b.WriteString("UserMessage(" + current + ")\n")
	b.WriteString("</current_message_to_analyze>")
	return b.String()
}

func trimTail(messages []string, maxTurns int) []string {
	if len(messages) <= maxTurns {
		return messages
	}
	return messages[len(messages)-maxTurns:]
}

type historyKey struct{}

// WithHistory attaches prior utterances to ctx for backends that can use them.
func WithHistory(ctx context.Context, history []string) context.Context {
	return context.WithValue(ctx, historyKey{}, history)
}

// HistoryFrom returns utterances attached by WithHistory.
func HistoryFrom(ctx context.Context) []string {
	history, _ := ctx.Value(historyKey{}).([]string)
	return history
}
