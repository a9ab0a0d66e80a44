package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parleylabs/parley/internal/forum"
)

var (
	errMissingDatabase = errors.New("record: database handle is required")
	noOpLogger         = zap.NewNop()
)

// StoreConfig describes the dependencies for constructing a Store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store is a thin typed facade over the forum tables. Feature services hold
// one Store rather than a raw database handle so the row-mapping conventions
// live in one place.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore validates the configuration and constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// DB exposes the underlying handle for callers that need transactions.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithTx returns a Store bound to the given transaction handle.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, clock: s.clock, logger: s.logger}
}

// Now returns the store clock's current time in UTC.
func (s *Store) Now() time.Time {
	return s.clock().UTC()
}

// GetUser fetches a user by ID. forum.ErrNotFound is returned for unknown
// identifiers.
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, forum.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record: fetching user %d: %w", userID, err)
	}
	return &user, nil
}

// GetUserByEmail fetches a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, forum.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record: fetching user by email: %w", err)
	}
	return &user, nil
}

// InsertUser persists a new user row and returns its assigned ID.
func (s *Store) InsertUser(ctx context.Context, user *User) (int64, error) {
	if user.DateInserted.IsZero() {
		user.DateInserted = s.Now()
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return 0, fmt.Errorf("record: inserting user: %w", err)
	}
	return user.UserID, nil
}

// UpdateUser applies the given column updates to one user row.
func (s *Store) UpdateUser(ctx context.Context, userID int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&User{}).Where("user_id = ?", userID).Updates(fields).Error
	if err != nil {
		return fmt.Errorf("record: updating user %d: %w", userID, err)
	}
	return nil
}

// PendingUsers lists unconfirmed, non-deleted users in insertion order.
func (s *Store) PendingUsers(ctx context.Context, limit, offset int) ([]User, error) {
	var users []User
	err := s.db.WithContext(ctx).
		Where("confirmed = ? AND deleted = ?", false, false).
		Order("user_id ASC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("record: listing pending users: %w", err)
	}
	return users, nil
}

// GetDiscussion fetches a discussion by ID.
func (s *Store) GetDiscussion(ctx context.Context, discussionID int64) (*Discussion, error) {
	var discussion Discussion
	err := s.db.WithContext(ctx).Where("discussion_id = ?", discussionID).Take(&discussion).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, forum.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record: fetching discussion %d: %w", discussionID, err)
	}
	return &discussion, nil
}

// GetComment fetches a comment by ID.
func (s *Store) GetComment(ctx context.Context, commentID int64) (*Comment, error) {
	var comment Comment
	err := s.db.WithContext(ctx).Where("comment_id = ?", commentID).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, forum.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record: fetching comment %d: %w", commentID, err)
	}
	return &comment, nil
}

// CommentsForDiscussion returns every comment in a discussion, oldest first.
func (s *Store) CommentsForDiscussion(ctx context.Context, discussionID int64) ([]Comment, error) {
	var comments []Comment
	err := s.db.WithContext(ctx).
		Where("discussion_id = ?", discussionID).
		Order("comment_id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("record: listing comments for discussion %d: %w", discussionID, err)
	}
	return comments, nil
}

// DeleteDiscussion removes a discussion row. Missing rows are not an error;
// the caller has already snapshotted what it needs.
func (s *Store) DeleteDiscussion(ctx context.Context, discussionID int64) error {
	err := s.db.WithContext(ctx).Where("discussion_id = ?", discussionID).Delete(&Discussion{}).Error
	if err != nil {
		return fmt.Errorf("record: deleting discussion %d: %w", discussionID, err)
	}
	return nil
}

// DeleteComment removes a comment row.
func (s *Store) DeleteComment(ctx context.Context, commentID int64) error {
	err := s.db.WithContext(ctx).Where("comment_id = ?", commentID).Delete(&Comment{}).Error
	if err != nil {
		return fmt.Errorf("record: deleting comment %d: %w", commentID, err)
	}
	return nil
}

// GetConversation fetches a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, conversationID int64) (*Conversation, error) {
	var conversation Conversation
	err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Take(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, forum.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record: fetching conversation %d: %w", conversationID, err)
	}
	return &conversation, nil
}

// ConversationMembers returns membership rows for a conversation ordered by
// user ID ascending. A limit of zero means unlimited.
func (s *Store) ConversationMembers(ctx context.Context, conversationID int64, limit, offset int) ([]UserConversation, error) {
	query := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("user_id ASC").
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	var members []UserConversation
	if err := query.Find(&members).Error; err != nil {
		return nil, fmt.Errorf("record: listing members of conversation %d: %w", conversationID, err)
	}
	return members, nil
}

// InsertConversationMessage persists a message and returns its assigned ID.
func (s *Store) InsertConversationMessage(ctx context.Context, message *ConversationMessage) (int64, error) {
	if message.DateInserted.IsZero() {
		message.DateInserted = s.Now()
	}
	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return 0, fmt.Errorf("record: inserting conversation message: %w", err)
	}
	return message.MessageID, nil
}

// UpdateConversation applies the given column updates to one conversation.
func (s *Store) UpdateConversation(ctx context.Context, conversationID int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&Conversation{}).
		Where("conversation_id = ?", conversationID).
		Updates(fields).Error
	if err != nil {
		return fmt.Errorf("record: updating conversation %d: %w", conversationID, err)
	}
	return nil
}

// InsertActivities batch-inserts queued notification activities.
func (s *Store) InsertActivities(ctx context.Context, activities []Activity) error {
	if len(activities) == 0 {
		return nil
	}
	now := s.Now()
	for i := range activities {
		if activities[i].DateInserted.IsZero() {
			activities[i].DateInserted = now
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(activities, 50).Error; err != nil {
		return fmt.Errorf("record: inserting %d activities: %w", len(activities), err)
	}
	return nil
}
