package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/chav-jf/speedy-green-flash/internal/database"
	"github.com/chav-jf/speedy-green-flash/internal/models"
)

// OpenPairingSession starts a new session for room, closing any session the
// room left open.
func OpenPairingSession(ctx context.Context, room string) (*models.PairingSession, error) {
	session := &models.PairingSession{RoomCode: room, StartedAt: time.Now().UTC()}
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := closeOpen(tx, room); err != nil {
			return err
		}
		return tx.Create(session).Error
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ClosePairingSession stamps the end time on the room's open session.
func ClosePairingSession(ctx context.Context, room string) error {
	return closeOpen(database.DB.WithContext(ctx), room)
}

func closeOpen(tx *gorm.DB, room string) error {
	return tx.Model(&models.PairingSession{}).
		Where("room_code = ? AND ended_at IS NULL", room).
		Update("ended_at", time.Now().UTC()).Error
}

// openSessionID returns the id of the room's open session, or nil when the
// room has none.
func openSessionID(tx *gorm.DB, room string) (*uint, error) {
	var session models.PairingSession
	err := tx.Select("id").
		Where("room_code = ? AND ended_at IS NULL", room).
		Order("started_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session.ID, nil
}

// RecordReaction appends a completed sample to the open session and logs the
// event in a single transaction.
func RecordReaction(ctx context.Context, room string, reactionTimeMs int64) error {
	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := openSessionID(tx, room)
		if err != nil {
			return err
		}
		if id != nil {
			err := tx.Model(&models.PairingSession{}).Where("id = ?", *id).
				Update("reaction_times", gorm.Expr("array_append(reaction_times, ?)", reactionTimeMs)).Error
			if err != nil {
				return err
			}
		}
		return tx.Create(&models.ReactionEvent{
			SessionID:      id,
			RoomCode:       room,
			Kind:           models.EventReaction,
			ReactionTimeMs: &reactionTimeMs,
		}).Error
	})
}

// RecordEarlyClick counts a false start against the open session and logs
// the event in a single transaction.
func RecordEarlyClick(ctx context.Context, room string) error {
	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := openSessionID(tx, room)
		if err != nil {
			return err
		}
		if id != nil {
			err := tx.Model(&models.PairingSession{}).Where("id = ?", *id).
				Update("false_starts", gorm.Expr("false_starts + 1")).Error
			if err != nil {
				return err
			}
		}
		return tx.Create(&models.ReactionEvent{
			SessionID: id,
			RoomCode:  room,
			Kind:      models.EventEarlyClick,
		}).Error
	})
}

// ListEvents returns the room's most recent events, newest first.
func ListEvents(ctx context.Context, room string, limit int) ([]models.ReactionEvent, error) {
	var events []models.ReactionEvent
	q := database.DB.WithContext(ctx).Where("room_code = ?", room).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}

// ListSessions returns the room's pairing sessions, newest first.
func ListSessions(ctx context.Context, room string) ([]models.PairingSession, error) {
	var sessions []models.PairingSession
	err := database.DB.WithContext(ctx).Where("room_code = ?", room).Order("started_at DESC").Find(&sessions).Error
	return sessions, err
}

// DeleteOlderThan removes events and closed sessions created before cutoff.
func DeleteOlderThan(ctx context.Context, cutoff time.Time) (events, sessions int64, err error) {
	err = database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", cutoff).Delete(&models.ReactionEvent{})
		if res.Error != nil {
			return res.Error
		}
		events = res.RowsAffected

		res = tx.Where("created_at < ? AND ended_at IS NOT NULL", cutoff).Delete(&models.PairingSession{})
		if res.Error != nil {
			return res.Error
		}
		sessions = res.RowsAffected
		return nil
	})
	return events, sessions, err
}
