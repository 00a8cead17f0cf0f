package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/metrics"
	"github.com/chav-jf/speedy-green-flash/internal/models"
	"github.com/chav-jf/speedy-green-flash/internal/repository"
)

// historyLimit caps how many events a summary is computed over.
const historyLimit = 1000

// ResultsStore is where relayed telemetry is read back from.
type ResultsStore interface {
	Events(ctx context.Context, room string, limit int) ([]models.ReactionEvent, error)
	Timeline(ctx context.Context, room string) ([]repository.TimelineDataPoint, error)
}

type ResultsHandler struct {
	log   *zap.Logger
	store ResultsStore
}

func NewResultsHandler(log *zap.Logger, store ResultsStore) *ResultsHandler {
	return &ResultsHandler{log: log, store: store}
}

type historyEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	ReactionTimeMs int64     `json:"reactionTimeMs"`
}

// Summary handles GET /rooms/:code/results.
func (h *ResultsHandler) Summary(c *gin.Context) {
	code, ok := roomParam(c)
	if !ok {
		return
	}
	events, err := h.store.Events(c.Request.Context(), code, historyLimit)
	if err != nil {
		h.log.Error("Failed to load events", zap.String("room", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load results"})
		return
	}

	history := make([]historyEntry, 0, len(events))
	for _, ev := range events {
		if ev.Kind == models.EventReaction && ev.ReactionTimeMs != nil {
			history = append(history, historyEntry{Timestamp: ev.CreatedAt, ReactionTimeMs: *ev.ReactionTimeMs})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"room":    code,
		"summary": metrics.Summarize(metrics.FromEvents(events)),
		"history": history,
	})
}

// Chart handles GET /rooms/:code/chart. ?format=json returns the chart
// options instead of the rendered page.
func (h *ResultsHandler) Chart(c *gin.Context) {
	code, ok := roomParam(c)
	if !ok {
		return
	}
	timeline, err := h.store.Timeline(c.Request.Context(), code)
	if err != nil {
		h.log.Error("Failed to get timeline data", zap.String("room", code), zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to load timeline data")
		return
	}

	line := generateTimelineChart(timeline, code)
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, line.JSON())
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := line.Render(c.Writer); err != nil {
		h.log.Error("Failed to render chart", zap.String("room", code), zap.Error(err))
	}
}

func generateTimelineChart(data []repository.TimelineDataPoint, room string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Reaction times " + room}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Reaction Time",
			Subtitle: "Room " + room,
		}),
		charts.WithXAxisOpts(opts.XAxis{Type: "time"}),
		charts.WithYAxisOpts(opts.YAxis{
			Type:  "value",
			Name:  "ms",
			Scale: opts.Bool(true),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	items := make([]opts.LineData, 0, len(data))
	for _, point := range data {
		items = append(items, opts.LineData{Value: []interface{}{point.Date, point.Value}})
	}
	line.AddSeries("Reaction time (ms)", items).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}), charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))
	return line
}
