package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"aihub/internal/util"
	"aihub/pkg/domain"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const migrateLockID int64 = 41524854

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// GormStore implements Store using GORM on Postgres or MySQL.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB for the given driver and runs auto-migrations.
// An empty driver selects postgres.
func NewGormStore(driver, dsn string) (*GormStore, error) {
	dialector, err := openDialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	migrate := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ThreadModel{}, &ConversationModel{}, &MessageModel{}, &ContextSummaryModel{}, &CredentialModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	if dialector.Name() == DriverPostgres {
		err = withMigrationLock(db, migrate)
	} else {
		err = migrate(db)
	}
	if err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func openDialector(driver, dsn string) (gorm.Dialector, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is required")
	}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateThread inserts a new thread.
func (s *GormStore) CreateThread(ctx context.Context, thread domain.Thread) error {
	model := threadToModel(thread)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetThread returns one thread by ID.
func (s *GormStore) GetThread(ctx context.Context, id string) (domain.Thread, bool, error) {
	var model ThreadModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Thread{}, false, nil
		}
		return domain.Thread{}, false, err
	}
	return threadFromModel(model), true, nil
}

// ListThreadsByOwner returns the most recently active threads of a user.
func (s *GormStore) ListThreadsByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Thread, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []ThreadModel
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.Thread, 0, len(models))
	for _, model := range models {
		items = append(items, threadFromModel(model))
	}
	return items, nil
}

// TouchThread sets the thread's UpdatedAt.
func (s *GormStore) TouchThread(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&ThreadModel{}).
		Where("id = ?", id).
		Update("updated_at", at.UTC()).Error
}

// DeleteThread removes a thread with its conversations, messages and summary.
func (s *GormStore) DeleteThread(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&MessageModel{}, "thread_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ConversationModel{}, "thread_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ContextSummaryModel{}, "thread_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&ThreadModel{}, "id = ?", id).Error
	})
}

// CreateConversation creates a new conversation record.
func (s *GormStore) CreateConversation(ctx context.Context, conversation domain.Conversation) error {
	model := conversationToModel(conversation)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetConversation returns one conversation by ID.
func (s *GormStore) GetConversation(ctx context.Context, id string) (domain.Conversation, bool, error) {
	var model ConversationModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	return conversationFromModel(model), true, nil
}

// FindConversationByProvider returns the oldest conversation of a thread bound to provider.
func (s *GormStore) FindConversationByProvider(ctx context.Context, threadID, provider string) (domain.Conversation, bool, error) {
	var model ConversationModel
	err := s.db.WithContext(ctx).
		Where("thread_id = ? AND provider = ?", threadID, provider).
		Order("created_at ASC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	return conversationFromModel(model), true, nil
}

// ListConversations returns the conversations of a thread in creation order.
func (s *GormStore) ListConversations(ctx context.Context, threadID string) ([]domain.Conversation, error) {
	var models []ConversationModel
	if err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.Conversation, 0, len(models))
	for _, model := range models {
		items = append(items, conversationFromModel(model))
	}
	return items, nil
}

// TouchConversation sets the conversation's UpdatedAt.
func (s *GormStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&ConversationModel{}).
		Where("id = ?", id).
		Update("updated_at", at.UTC()).Error
}

// AppendMessage records a message.
func (s *GormStore) AppendMessage(ctx context.Context, msg domain.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}
	model := messageToModel(msg)
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListRecentMessages returns recent messages for a thread (newest first, then reversed to chronological).
// Equal timestamps fall back to id order; ids are UUIDv7, so rows written by
// one process keep insertion order.
func (s *GormStore) ListRecentMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	var models []MessageModel
	if err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

// ListConversationMessages returns the newest limit messages of a conversation
// in chronological order. A non-positive limit returns all of them.
func (s *GormStore) ListConversationMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	query := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []MessageModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

// GetSummary returns the context summary of a thread.
func (s *GormStore) GetSummary(ctx context.Context, threadID string) (domain.ContextSummary, bool, error) {
	var model ContextSummaryModel
	if err := s.db.WithContext(ctx).First(&model, "thread_id = ?", threadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ContextSummary{}, false, nil
		}
		return domain.ContextSummary{}, false, err
	}
	return summaryFromModel(model), true, nil
}

// UpsertSummary writes the thread summary, keeping the original ID and CreatedAt.
func (s *GormStore) UpsertSummary(ctx context.Context, threadID, summary string, messageCount int) (domain.ContextSummary, error) {
	now := time.Now().UTC()
	model := ContextSummaryModel{
		ID:           util.NewID(),
		ThreadID:     threadID,
		Summary:      summary,
		MessageCount: messageCount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "thread_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"summary", "message_count", "updated_at"}),
	}).Create(&model).Error; err != nil {
		return domain.ContextSummary{}, err
	}
	var stored ContextSummaryModel
	if err := db.First(&stored, "thread_id = ?", threadID).Error; err != nil {
		return domain.ContextSummary{}, err
	}
	return summaryFromModel(stored), nil
}

// GetCredential returns the stored credential of a user for one provider.
func (s *GormStore) GetCredential(ctx context.Context, ownerID, provider string) (domain.Credential, bool, error) {
	var model CredentialModel
	if err := s.db.WithContext(ctx).
		First(&model, "owner_id = ? AND provider = ?", ownerID, provider).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Credential{}, false, nil
		}
		return domain.Credential{}, false, err
	}
	return credentialFromModel(model), true, nil
}

// SaveCredential creates or replaces a credential.
func (s *GormStore) SaveCredential(ctx context.Context, cred domain.Credential) error {
	model := credentialToModel(cred)
	model.ID = util.NewID()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"secret", "updated_at"}),
	}).Create(&model).Error
}

// DeleteCredential removes a credential and reports whether one existed.
func (s *GormStore) DeleteCredential(ctx context.Context, ownerID, provider string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&CredentialModel{}, "owner_id = ? AND provider = ?", ownerID, provider)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListCredentials returns a user's credentials ordered by provider.
func (s *GormStore) ListCredentials(ctx context.Context, ownerID string) ([]domain.Credential, error) {
	var models []CredentialModel
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("provider ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.Credential, 0, len(models))
	for _, model := range models {
		items = append(items, credentialFromModel(model))
	}
	return items, nil
}

func threadToModel(t domain.Thread) ThreadModel {
	return ThreadModel{
		ID:        t.ID,
		OwnerID:   t.OwnerID,
		Title:     t.Title,
		Provider:  t.Provider,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func threadFromModel(m ThreadModel) domain.Thread {
	return domain.Thread{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Title:     m.Title,
		Provider:  m.Provider,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func conversationToModel(c domain.Conversation) ConversationModel {
	return ConversationModel{
		ID:        c.ID,
		ThreadID:  c.ThreadID,
		Provider:  c.Provider,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func conversationFromModel(m ConversationModel) domain.Conversation {
	return domain.Conversation{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Provider:  m.Provider,
		Title:     m.Title,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	var conversationID *string
	if strings.TrimSpace(msg.ConversationID) != "" {
		value := strings.TrimSpace(msg.ConversationID)
		conversationID = &value
	}
	var failure []byte
	if msg.Failure != nil {
		failure, _ = json.Marshal(msg.Failure)
	}
	return MessageModel{
		ID:             msg.ID,
		ThreadID:       msg.ThreadID,
		ConversationID: conversationID,
		Provider:       msg.Provider,
		Role:           string(msg.Role),
		Content:        msg.Content,
		Failure:        failure,
		CreatedAt:      msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	conversationID := ""
	if m.ConversationID != nil {
		conversationID = strings.TrimSpace(*m.ConversationID)
	}
	var failure *domain.MessageFailure
	if len(m.Failure) > 0 && string(m.Failure) != "null" {
		var f domain.MessageFailure
		if err := json.Unmarshal(m.Failure, &f); err == nil {
			failure = &f
		}
	}
	return domain.Message{
		ID:             m.ID,
		ThreadID:       m.ThreadID,
		ConversationID: conversationID,
		Provider:       m.Provider,
		Role:           domain.Role(m.Role),
		Content:        m.Content,
		Failure:        failure,
		CreatedAt:      m.CreatedAt,
	}
}

func summaryFromModel(m ContextSummaryModel) domain.ContextSummary {
	return domain.ContextSummary{
		ID:           m.ID,
		ThreadID:     m.ThreadID,
		Summary:      m.Summary,
		MessageCount: m.MessageCount,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func credentialToModel(c domain.Credential) CredentialModel {
	return CredentialModel{
		OwnerID:   c.OwnerID,
		Provider:  c.Provider,
		Secret:    c.Secret,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func credentialFromModel(m CredentialModel) domain.Credential {
	return domain.Credential{
		OwnerID:   m.OwnerID,
		Provider:  m.Provider,
		Secret:    m.Secret,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
