package applications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/parleylabs/parley/internal/flood"
	"github.com/parleylabs/parley/internal/forum"
	"github.com/parleylabs/parley/internal/record"
	"github.com/parleylabs/parley/internal/session"
	"github.com/parleylabs/parley/internal/spam"
)

const (
	defaultPageLimit = 30
	maxPageLimit     = 100
)

var (
	errMissingStore      = errors.New("applications: record store is required")
	errMissingDispatcher = errors.New("applications: spam dispatcher is required")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig describes the dependencies for the application workflow.
type ServiceConfig struct {
	Store  *record.Store
	Spam   *spam.Dispatcher
	Flood  *flood.Limiter
	Clock  func() time.Time
	Logger *zap.Logger
}

// Service implements the membership application workflow: guests submit
// registrations, moderators approve or decline them.
type Service struct {
	store  *record.Store
	spam   *spam.Dispatcher
	flood  *flood.Limiter
	clock  func() time.Time
	logger *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Spam == nil {
		return nil, errMissingDispatcher
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:  cfg.Store,
		spam:   cfg.Spam,
		flood:  cfg.Flood,
		clock:  clock,
		logger: logger,
	}, nil
}

// List returns pending applications one page at a time. Limits are clamped
// to 1..100 with a default of 30; pages start at 1.
func (s *Service) List(ctx context.Context, page, limit int) ([]Application, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if page <= 0 {
		page = 1
	}
	users, err := s.store.PendingUsers(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	out := make([]Application, 0, len(users))
	for i := range users {
		out = append(out, fromUser(&users[i]))
	}
	return out, nil
}

// Get fetches one application. Soft-deleted targets read as absent.
func (s *Service) Get(ctx context.Context, applicationID int64) (Application, error) {
	user, err := s.store.GetUser(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}
	if user.Deleted {
		return Application{}, forum.ErrNotFound
	}
	return fromUser(user), nil
}

// Submit registers a new pending user from a membership application. The
// submission is flood- and spam-checked before the row is written; a flagged
// registration leaves a moderation log entry and is rejected.
func (s *Service) Submit(ctx context.Context, sess *session.Session, req SubmitRequest) (Application, error) {
	if err := req.validate(); err != nil {
		return Application{}, err
	}

	email := strings.TrimSpace(req.Email)
	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, forum.ErrNotFound) {
		return Application{}, err
	}
	if existing != nil && !existing.Deleted {
		return Application{}, fmt.Errorf("%w: email is already in use", forum.ErrConflict)
	}

	remoteIP := spam.DecodeIP(remoteHostOf(sess))
	if s.flood != nil {
		if err := s.flood.CheckKey("registration/"+remoteIP, flood.ActionRegistration); err != nil {
			return Application{}, err
		}
	}

	payload := &forum.RecordPayload{
		Name:          strings.TrimSpace(req.Name),
		Email:         email,
		Body:          strings.TrimSpace(req.DiscoveryText),
		DiscoveryText: strings.TrimSpace(req.DiscoveryText),
		IPAddress:     remoteIP,
	}
	flagged, err := s.spam.IsSpam(ctx, forum.RecordTypeRegistration, payload, sess, spam.DefaultOptions())
	if err != nil {
		return Application{}, err
	}
	if flagged {
		return Application{}, fmt.Errorf("%w: registration flagged for review", forum.ErrPermission)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Application{}, fmt.Errorf("applications: hashing password: %w", err)
	}

	user := &record.User{
		Name:            payload.Name,
		Email:           payload.Email,
		Password:        string(hashed),
		DiscoveryText:   payload.DiscoveryText,
		Confirmed:       false,
		InsertIPAddress: remoteIP,
		DateInserted:    s.clock().UTC(),
	}
	userID, err := s.store.InsertUser(ctx, user)
	if err != nil {
		return Application{}, err
	}
	if userID <= 0 {
		return Application{}, fmt.Errorf("%w: registration yielded no user id", forum.ErrUpstream)
	}

	s.logger.Info("membership application submitted",
		zap.Int64("application_id", userID),
		zap.String("name", user.Name))
	return fromUser(user), nil
}

// Approve confirms a pending application. Only pending targets are eligible.
func (s *Service) Approve(ctx context.Context, applicationID int64) (Application, error) {
	user, err := s.pendingTarget(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}
	if err := s.store.UpdateUser(ctx, user.UserID, map[string]any{"confirmed": true}); err != nil {
		return Application{}, err
	}
	user.Confirmed = true
	s.logger.Info("application approved", zap.Int64("application_id", user.UserID))
	result := fromUser(user)
	result.Status = forum.ApplicationStatusApproved
	return result, nil
}

// Decline rejects a pending application by soft-deleting the underlying
// user. Only pending targets are eligible.
func (s *Service) Decline(ctx context.Context, applicationID int64) (Application, error) {
	user, err := s.pendingTarget(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}
	if err := s.store.UpdateUser(ctx, user.UserID, map[string]any{"deleted": true}); err != nil {
		return Application{}, err
	}
	s.logger.Info("application declined", zap.Int64("application_id", user.UserID))
	result := fromUser(user)
	result.Status = forum.ApplicationStatusDeclined
	return result, nil
}

// pendingTarget loads the user behind an application and enforces the
// one-way lifecycle: anything not currently pending is a conflict.
func (s *Service) pendingTarget(ctx context.Context, applicationID int64) (*record.User, error) {
	user, err := s.store.GetUser(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if user.Deleted {
		return nil, forum.ErrNotFound
	}
	if user.Confirmed {
		return nil, fmt.Errorf("%w: user %d is not pending", forum.ErrConflict, applicationID)
	}
	return user, nil
}

func remoteHostOf(sess *session.Session) string {
	if sess == nil {
		return ""
	}
	return sess.RemoteAddr
}
