package repository

import (
	"context"
	"time"

	"github.com/chav-jf/speedy-green-flash/internal/models"
)

// Store exposes the postgres-backed package functions as the relay's
// recorder and the results endpoints' data source.
type Store struct{}

func (Store) RoomOpened(ctx context.Context, room string) error {
	_, err := OpenPairingSession(ctx, room)
	return err
}

func (Store) RecordReaction(ctx context.Context, room string, reactionTimeMs int64) error {
	return RecordReaction(ctx, room, reactionTimeMs)
}

func (Store) RecordEarlyClick(ctx context.Context, room string) error {
	return RecordEarlyClick(ctx, room)
}

func (Store) RoomClosed(ctx context.Context, room string) error {
	return ClosePairingSession(ctx, room)
}

func (Store) Events(ctx context.Context, room string, limit int) ([]models.ReactionEvent, error) {
	return ListEvents(ctx, room, limit)
}

func (Store) Timeline(ctx context.Context, room string) ([]TimelineDataPoint, error) {
	return GetTimelineData(ctx, room)
}

func (Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	return DeleteOlderThan(ctx, cutoff)
}
