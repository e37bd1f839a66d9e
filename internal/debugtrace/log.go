// Package debugtrace records one trace per chat turn for inspection and
// token accounting.
package debugtrace

import (
	"sync"

	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// Log is the append-only trace list of the current conversation.
type Log struct {
	mu     sync.RWMutex
	id     string
	traces []models.DebugTurnTrace
}

// NewLog returns an empty trace log.
func NewLog() *Log {
	return &Log{}
}

// Clear drops all traces and binds the log to a conversation id.
func (l *Log) Clear(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.id = id
	l.traces = nil
}

// Replace restores the traces of a stored conversation (deep-copied).
func (l *Log) Replace(id string, traces []models.DebugTurnTrace) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.id = id
	l.traces = models.CloneTraces(traces)
}

// ID returns the conversation id the traces belong to.
func (l *Log) ID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.id
}

// Append records one turn.
func (l *Log) Append(trace models.DebugTurnTrace) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.traces = append(l.traces, trace.Clone())
}

// Traces returns a deep copy of the recorded traces.
func (l *Log) Traces() []models.DebugTurnTrace {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return models.CloneTraces(l.traces)
}

// AggregateUsage sums token usage over all traces. Traces without usage
// contribute zero.
func (l *Log) AggregateUsage() models.TokenUsage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Aggregate(l.traces)
}

// Aggregate sums token usage over traces.
func Aggregate(traces []models.DebugTurnTrace) models.TokenUsage {
	var total models.TokenUsage
	for _, t := range traces {
		if t.TokenUsage != nil {
			total = total.Add(*t.TokenUsage)
		}
	}
	return total
}
