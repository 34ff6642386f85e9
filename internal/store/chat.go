package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"teamsync-backend/internal/model"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

var ErrEmptyMessage = errors.New("store: empty chat message")

// ChatStore 채팅 메시지 저장소
type ChatStore struct {
	db *gorm.DB
}

// NewChatStore ChatStore 생성
func NewChatStore(db *gorm.DB) *ChatStore {
	return &ChatStore{db: db}
}

// Create 메시지 저장. ID 와 CreatedAt 이 채워진다.
func (s *ChatStore) Create(ctx context.Context, msg *model.ChatMessage) error {
	if msg.Message == "" {
		return ErrEmptyMessage
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("create chat message: %w", err)
	}
	return nil
}

// List 프로젝트의 최근 메시지를 오래된 순으로 반환. project 가 비면 전체.
func (s *ChatStore) List(ctx context.Context, project string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := s.db.WithContext(ctx).Model(&model.ChatMessage{})
	if project != "" {
		query = query.Where("project = ?", project)
	}

	var rows []model.ChatMessage
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}

	// 최근 N개를 뽑은 뒤 시간순으로 뒤집는다
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}
