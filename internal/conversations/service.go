package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parleylabs/parley/internal/activity"
	"github.com/parleylabs/parley/internal/forum"
	"github.com/parleylabs/parley/internal/record"
	"github.com/parleylabs/parley/internal/session"
	"github.com/parleylabs/parley/internal/spam"
)

var (
	errMissingStore = errors.New("conversations: record store is required")
	noOpLogger      = zap.NewNop()
)

// ServiceConfig describes the dependencies for conversation helpers.
// Activities defaults to the record store when unset.
type ServiceConfig struct {
	Store      *record.Store
	Activities activity.Sink
	Spam       *spam.Dispatcher
	Logger     *zap.Logger
}

// Service provides membership lookups, message posting, and notification
// fan-out for private conversations.
type Service struct {
	store      *record.Store
	activities activity.Sink
	spam       *spam.Dispatcher
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	activities := cfg.Activities
	if activities == nil {
		activities = cfg.Store
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{store: cfg.Store, activities: activities, spam: cfg.Spam, logger: logger}, nil
}

// MemberIDs returns the user IDs participating in a conversation, ordered
// ascending and paged by limit/offset. A limit of zero means unlimited.
func (s *Service) MemberIDs(ctx context.Context, conversationID int64, limit, offset int) ([]int64, error) {
	members, err := s.store.ConversationMembers(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.UserID)
	}
	return ids, nil
}

// Members returns membership rows keyed by user ID, ordered and paged the
// same way as MemberIDs.
func (s *Service) Members(ctx context.Context, conversationID int64, limit, offset int) (map[int64]record.UserConversation, error) {
	members, err := s.store.ConversationMembers(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]record.UserConversation, len(members))
	for _, member := range members {
		out[member.UserID] = member
	}
	return out, nil
}

// ValidMember reports whether userID appears in the unlimited membership set
// of the conversation.
func (s *Service) ValidMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	ids, err := s.MemberIDs(ctx, conversationID, 0, 0)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// PostMessage appends a message to a conversation on behalf of the session
// user, spam-checks it, bumps the conversation counters, and notifies the
// other members.
func (s *Service) PostMessage(ctx context.Context, sess *session.Session, conversationID int64, body string) (*record.ConversationMessage, error) {
	if !sess.IsValid() {
		return nil, fmt.Errorf("%w: sign in to send messages", forum.ErrPermission)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, forum.NewValidationError("body", "message body is required")
	}

	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	member, err := s.ValidMember(ctx, conversationID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, fmt.Errorf("%w: not a member of conversation %d", forum.ErrPermission, conversationID)
	}

	if s.spam != nil {
		payload := &forum.RecordPayload{
			InsertUserID: sess.UserID,
			Body:         body,
		}
		flagged, err := s.spam.IsSpam(ctx, forum.RecordTypeConversationMessage, payload, sess, spam.DefaultOptions())
		if err != nil {
			return nil, err
		}
		if flagged {
			return nil, fmt.Errorf("%w: message flagged for review", forum.ErrPermission)
		}
	}

	message := &record.ConversationMessage{
		ConversationID:  conversationID,
		Body:            body,
		InsertUserID:    sess.UserID,
		InsertIPAddress: sess.RemoteAddr,
		DateInserted:    s.store.Now(),
	}
	messageID, err := s.store.InsertConversationMessage(ctx, message)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateConversation(ctx, conversationID, map[string]any{
		"count_messages":     gorm.Expr("count_messages + 1"),
		"last_message_id":    messageID,
		"date_last_activity": s.store.Now(),
	}); err != nil {
		return nil, err
	}

	memberIDs, err := s.MemberIDs(ctx, conversationID, 0, 0)
	if err != nil {
		return nil, err
	}
	if err := s.NotifyUsers(ctx, conversation, message, memberIDs); err != nil {
		return nil, err
	}
	return message, nil
}

// NotifyUsers queues one notification per recipient of a new conversation
// message, excluding the author, then flushes the batch once. The story is
// the message body, headlined "Re: <subject>" when the conversation carries
// a subject. The queue is built fresh per call; concurrent messages never
// share a batch.
func (s *Service) NotifyUsers(ctx context.Context, conversation *record.Conversation, message *record.ConversationMessage, notifyUserIDs []int64) error {
	if conversation == nil || message == nil {
		return errors.New("conversations: conversation and message are required")
	}

	queue, err := activity.NewQueue(activity.QueueConfig{Store: s.activities, Logger: s.logger})
	if err != nil {
		return err
	}

	story := message.Body
	if conversation.Subject != "" {
		story = fmt.Sprintf("Re: %s\n%s", conversation.Subject, message.Body)
	}
	route := fmt.Sprintf("/messages/%d#%d", conversation.ConversationID, message.MessageID)

	queued := 0
	for _, notifyUserID := range notifyUserIDs {
		if notifyUserID == message.InsertUserID {
			continue
		}
		queue.Queue(record.Activity{
			ActivityType:   activity.ActivityTypeConversationMessage,
			NotifyUserID:   notifyUserID,
			ActivityUserID: message.InsertUserID,
			HeadlineFormat: "{ActivityUserID,User} sent you a {Url,message}.",
			Story:          story,
			Route:          route,
			RecordType:     "ConversationMessage",
			RecordID:       message.MessageID,
		})
		queued++
	}

	if err := queue.Flush(ctx); err != nil {
		return err
	}
	s.logger.Debug("conversation message notifications queued",
		zap.Int64("conversation_id", conversation.ConversationID),
		zap.Int64("message_id", message.MessageID),
		zap.Int("recipients", queued))
	return nil
}
