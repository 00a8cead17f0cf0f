package metrics

import (
	"math"
	"sort"

	"github.com/chav-jf/speedy-green-flash/internal/models"
)

// ReactionData is the raw material for a room's summary.
type ReactionData struct {
	ReactionTimes []int64 `json:"reactionTimes"`
	FalseStarts   int     `json:"falseStarts"`
}

// Summary is what the results endpoint reports.
type Summary struct {
	Count          int     `json:"count"`
	FalseStarts    int     `json:"falseStarts"`
	Average        float64 `json:"average"`
	AverageRounded int64   `json:"averageRounded"`
	Median         float64 `json:"median"`
	SD             float64 `json:"sd"`
	Best           *int64  `json:"best"`
	FalseStartRate float64 `json:"falseStartRate"`
}

// FromEvents folds stored events into ReactionData, oldest first.
func FromEvents(events []models.ReactionEvent) *ReactionData {
	data := &ReactionData{}
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		switch e.Kind {
		case models.EventReaction:
			if e.ReactionTimeMs != nil {
				data.ReactionTimes = append(data.ReactionTimes, *e.ReactionTimeMs)
			}
		case models.EventEarlyClick:
			data.FalseStarts++
		}
	}
	return data
}

func CalculateAverageReactionTime(data *ReactionData) float64 {
	if len(data.ReactionTimes) == 0 {
		return 0
	}
	var sum int64
	for _, rt := range data.ReactionTimes {
		sum += rt
	}
	return float64(sum) / float64(len(data.ReactionTimes))
}

// CalculateReactionTimeSD is the population standard deviation.
func CalculateReactionTimeSD(data *ReactionData) float64 {
	if len(data.ReactionTimes) <= 1 {
		return 0
	}
	avg := CalculateAverageReactionTime(data)
	var sumSquaredDiff float64
	for _, rt := range data.ReactionTimes {
		diff := float64(rt) - avg
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff / float64(len(data.ReactionTimes)))
}

func CalculateMedianReactionTime(data *ReactionData) float64 {
	n := len(data.ReactionTimes)
	if n == 0 {
		return 0
	}
	sorted := append([]int64(nil), data.ReactionTimes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return float64(sorted[n/2-1]+sorted[n/2]) / 2
}

// BestReactionTime returns the fastest sample, or nil with no samples.
func BestReactionTime(data *ReactionData) *int64 {
	if len(data.ReactionTimes) == 0 {
		return nil
	}
	best := data.ReactionTimes[0]
	for _, rt := range data.ReactionTimes[1:] {
		if rt < best {
			best = rt
		}
	}
	return &best
}

// CalculateFalseStartRate is false starts over all attempts that ended in
// either a reaction or a false start.
func CalculateFalseStartRate(data *ReactionData) float64 {
	attempts := len(data.ReactionTimes) + data.FalseStarts
	if attempts == 0 {
		return 0
	}
	return float64(data.FalseStarts) / float64(attempts)
}

func Summarize(data *ReactionData) Summary {
	avg := CalculateAverageReactionTime(data)
	return Summary{
		Count:          len(data.ReactionTimes),
		FalseStarts:    data.FalseStarts,
		Average:        avg,
		AverageRounded: int64(math.Round(avg)),
		Median:         CalculateMedianReactionTime(data),
		SD:             CalculateReactionTimeSD(data),
		Best:           BestReactionTime(data),
		FalseStartRate: CalculateFalseStartRate(data),
	}
}
