package model

import (
	"time"
)

// MaxChatMessageLength 저장되는 채팅 본문 최대 길이 (문자 수)
const MaxChatMessageLength = 2000

// ChatMessage 프로젝트 채팅 메시지
type ChatMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Project    string    `gorm:"type:varchar(255);index:idx_chat_project_created" json:"project,omitempty"`
	SenderID   string    `gorm:"type:varchar(255)" json:"sender_id,omitempty"`
	SenderName string    `gorm:"type:varchar(100)" json:"sender_name,omitempty"`
	Message    string    `gorm:"type:text;not null" json:"message"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index:idx_chat_project_created" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
