package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ThreadModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	OwnerID   string    `gorm:"not null;index;size:64"`
	Title     string    `gorm:"not null;size:200"`
	Provider  string    `gorm:"size:50"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

type ConversationModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	ThreadID  string    `gorm:"not null;index:idx_conversation_thread_provider;size:36"`
	Provider  string    `gorm:"not null;index:idx_conversation_thread_provider;size:50"`
	Title     string    `gorm:"not null;size:200"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

type MessageModel struct {
	ID             string  `gorm:"primaryKey;size:36"`
	ThreadID       string  `gorm:"not null;index:idx_message_thread_created;size:36"`
	ConversationID *string `gorm:"index;size:36"`
	Provider       string  `gorm:"not null;size:50"`
	Role           string  `gorm:"not null;size:20"`
	Content        string  `gorm:"type:text;not null"`
	Failure        datatypes.JSON
	CreatedAt      time.Time `gorm:"not null;index:idx_message_thread_created"`
}

type ContextSummaryModel struct {
	ID           string    `gorm:"primaryKey;size:36"`
	ThreadID     string    `gorm:"not null;uniqueIndex;size:36"`
	Summary      string    `gorm:"not null;size:500"`
	MessageCount int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type CredentialModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	OwnerID   string    `gorm:"not null;uniqueIndex:idx_credential_owner_provider;size:64"`
	Provider  string    `gorm:"not null;uniqueIndex:idx_credential_owner_provider;size:50"`
	Secret    string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
