package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chav-jf/speedy-green-flash/internal/models"
)

func ms(v int64) *int64 { return &v }

func TestSummarize(t *testing.T) {
	data := &ReactionData{ReactionTimes: []int64{100, 200, 300}, FalseStarts: 1}
	s := Summarize(data)

	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 200.0, s.Average)
	assert.Equal(t, int64(200), s.AverageRounded)
	assert.Equal(t, 200.0, s.Median)
	assert.InDelta(t, math.Sqrt(20000.0/3), s.SD, 1e-9)
	require.NotNil(t, s.Best)
	assert.Equal(t, int64(100), *s.Best)
	assert.Equal(t, 0.25, s.FalseStartRate)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(&ReactionData{})
	assert.Zero(t, s.Count)
	assert.Zero(t, s.Average)
	assert.Zero(t, s.SD)
	assert.Nil(t, s.Best)
	assert.Zero(t, s.FalseStartRate)
}

func TestAverageRounding(t *testing.T) {
	s := Summarize(&ReactionData{ReactionTimes: []int64{201, 202}})
	assert.Equal(t, 201.5, s.Average)
	assert.Equal(t, int64(202), s.AverageRounded)
	assert.Equal(t, 201.5, s.Median)
}

func TestFromEvents_OldestFirst(t *testing.T) {
	// Repository returns newest first.
	events := []models.ReactionEvent{
		{Kind: models.EventReaction, ReactionTimeMs: ms(300)},
		{Kind: models.EventEarlyClick},
		{Kind: models.EventReaction, ReactionTimeMs: ms(250)},
		{Kind: models.EventReaction},
	}
	data := FromEvents(events)
	assert.Equal(t, []int64{250, 300}, data.ReactionTimes)
	assert.Equal(t, 1, data.FalseStarts)
}
