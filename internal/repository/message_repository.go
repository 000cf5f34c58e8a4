package repository

import (
	"fmt"

	"gorm.io/gorm"

	"missionchat/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(message *model.ChatMessage) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create chat message failed: %w", err)
	}
	return nil
}

// ListBySessionID returns a session's transcript in chronological order.
func (r *MessageRepository) ListBySessionID(sessionID string) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	if err := r.db.Where("session_id = ?", sessionID).Order("created_at ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list session messages failed: %w", err)
	}
	return messages, nil
}

// ListByUserID pages through a user's messages newest-first, then reverses
// the page so callers get it in chronological display order.
func (r *MessageRepository) ListByUserID(userID uint, limit, offset int) ([]model.ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var messages []model.ChatMessage
	if err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list user messages failed: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// SessionsByUserID aggregates a user's messages per session, most recent
// activity first.
func (r *MessageRepository) SessionsByUserID(userID uint) ([]model.SessionSummary, error) {
	var summaries []model.SessionSummary
	err := r.db.Raw(`
		SELECT
			session_id,
			MIN(created_at) AS first_message,
			MAX(created_at) AS last_message,
			COUNT(*) AS message_count
		FROM chat_history
		WHERE user_id = ?
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC`, userID).Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate user sessions failed: %w", err)
	}
	return summaries, nil
}

// DeleteBySessionID removes a session's messages. When ownerID is set the
// filter keeps other users' rows untouched even under a colliding
// session id.
func (r *MessageRepository) DeleteBySessionID(sessionID string, ownerID *uint) error {
	query := r.db.Where("session_id = ?", sessionID)
	if ownerID != nil {
		query = query.Where("user_id = ?", *ownerID)
	}
	if err := query.Delete(&model.ChatMessage{}).Error; err != nil {
		return fmt.Errorf("delete session messages failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) StatsByUserID(userID uint) (*model.UserStats, error) {
	var stats model.UserStats
	if err := r.db.Model(&model.ChatMessage{}).Where("user_id = ?", userID).Count(&stats.TotalMessages).Error; err != nil {
		return nil, fmt.Errorf("count user messages failed: %w", err)
	}
	if err := r.db.Model(&model.ChatMessage{}).
		Where("user_id = ?", userID).
		Distinct("session_id").
		Count(&stats.UniqueSessions).Error; err != nil {
		return nil, fmt.Errorf("count user sessions failed: %w", err)
	}
	return &stats, nil
}
