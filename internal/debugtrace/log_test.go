package debugtrace_test

import (
	"testing"

	"github.com/raphaelgruber/vaultwiz/internal/debugtrace"
	"github.com/raphaelgruber/vaultwiz/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usage(in, out, cached int64) *models.TokenUsage {
	return &models.TokenUsage{InputTokens: in, OutputTokens: out, CachedInputTokens: cached}
}

func TestAggregateUsage(t *testing.T) {
	tests := []struct {
		name   string
		traces []models.DebugTurnTrace
		want   models.TokenUsage
	}{
		{"empty", nil, models.TokenUsage{}},
		{"single", []models.DebugTurnTrace{{TokenUsage: usage(10, 5, 0)}}, models.TokenUsage{InputTokens: 10, OutputTokens: 5}},
		{
			"nil usage contributes zero",
			[]models.DebugTurnTrace{
				{TokenUsage: usage(10, 5, 2)},
				{TokenUsage: nil},
				{TokenUsage: usage(3, 4, 1)},
			},
			models.TokenUsage{InputTokens: 13, OutputTokens: 9, CachedInputTokens: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := debugtrace.NewLog()
			for _, tr := range tt.traces {
				log.Append(tr)
			}
			assert.Equal(t, tt.want, log.AggregateUsage())
			assert.Equal(t, tt.want, debugtrace.Aggregate(tt.traces))
		})
	}
}

func TestClearResetsTraces(t *testing.T) {
	log := debugtrace.NewLog()
	log.Append(models.DebugTurnTrace{UserPrompt: "a", TokenUsage: usage(1, 1, 0)})

	log.Clear("conv-2")

	assert.Empty(t, log.Traces())
	assert.Equal(t, "conv-2", log.ID())
	assert.Equal(t, models.TokenUsage{}, log.AggregateUsage())
}

func TestReplaceCopiesTraces(t *testing.T) {
	stored := []models.DebugTurnTrace{{UserPrompt: "q", TokenUsage: usage(2, 3, 0)}}
	log := debugtrace.NewLog()

	log.Replace("conv-1", stored)
	stored[0].TokenUsage.InputTokens = 99

	traces := log.Traces()
	require.Len(t, traces, 1)
	assert.Equal(t, int64(2), traces[0].TokenUsage.InputTokens)
}

func TestTracesReturnsCopy(t *testing.T) {
	log := debugtrace.NewLog()
	log.Append(models.DebugTurnTrace{UserPrompt: "q", TokenUsage: usage(2, 3, 0)})

	traces := log.Traces()
	traces[0].TokenUsage.OutputTokens = 100

	assert.Equal(t, int64(3), log.Traces()[0].TokenUsage.OutputTokens)
}
