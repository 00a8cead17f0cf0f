package repository

import (
	"context"
	"time"

	"github.com/chav-jf/speedy-green-flash/internal/database"
	"github.com/chav-jf/speedy-green-flash/internal/models"
)

type TimelineDataPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// GetTimelineData returns the room's completed reaction times in order.
func GetTimelineData(ctx context.Context, room string) ([]TimelineDataPoint, error) {
	var data []TimelineDataPoint
	query := `
		SELECT
			created_at AS date,
			reaction_time_ms::float AS value
		FROM reaction_events
		WHERE room_code = ? AND kind = ? AND reaction_time_ms IS NOT NULL
		ORDER BY created_at, id;
	`
	err := database.DB.WithContext(ctx).Raw(query, room, models.EventReaction).Scan(&data).Error
	return data, err
}
