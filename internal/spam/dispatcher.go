package spam

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/parleylabs/parley/internal/forum"
	"github.com/parleylabs/parley/internal/record"
	"github.com/parleylabs/parley/internal/session"
)

var errMissingUsers = errors.New("spam: user source is required")

// Options controls side effects of one spam check.
type Options struct {
	// Log writes a moderation-queue entry on a positive verdict.
	Log bool
}

// DefaultOptions returns the options applied when the caller has no opinion.
func DefaultOptions() Options {
	return Options{Log: true}
}

// CheckContext is handed to every registered checker. Checkers may mutate
// the payload; enrichment has already run by the time they see it.
type CheckContext struct {
	RecordType forum.RecordType
	Record     *forum.RecordPayload
	Options    Options
	Session    *session.Session
}

// Checker is one pluggable spam heuristic. A true result flags the record;
// results across all checkers are OR-folded and every checker always runs.
type Checker interface {
	Name() string
	CheckSpam(ctx context.Context, check *CheckContext) (bool, error)
}

// UserSource resolves author accounts during enrichment.
type UserSource interface {
	GetUser(ctx context.Context, userID int64) (*record.User, error)
}

// ModerationLog records the side effects of positive verdicts.
type ModerationLog interface {
	LogSpam(ctx context.Context, recordType forum.RecordType, data *forum.RecordPayload) error
}

// DispatcherConfig describes the dependencies for constructing a Dispatcher.
type DispatcherConfig struct {
	Enabled    bool
	Users      UserSource
	Moderation ModerationLog
	Checkers   []Checker
	Logger     *zap.Logger
}

// Dispatcher enriches candidate records with author metadata and fans each
// check out to the registered checkers. It is explicitly constructed and
// carries the enabled flag as state; there is no process-wide toggle.
type Dispatcher struct {
	enabled    bool
	users      UserSource
	moderation ModerationLog
	checkers   []Checker
	logger     *zap.Logger
}

// NewDispatcher validates configuration and constructs a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Users == nil {
		return nil, errMissingUsers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		enabled:    cfg.Enabled,
		users:      cfg.Users,
		moderation: cfg.Moderation,
		checkers:   append([]Checker(nil), cfg.Checkers...),
		logger:     logger,
	}, nil
}

// Register appends a checker to the registry. Checkers run in registration
// order.
func (d *Dispatcher) Register(checker Checker) {
	d.checkers = append(d.checkers, checker)
}

// Enabled reports whether spam checking is active on this dispatcher.
func (d *Dispatcher) Enabled() bool {
	return d.enabled
}

// IsSpam enriches data, runs every registered checker, and returns the
// OR-folded verdict. A positive verdict with Options.Log set writes a
// moderation-queue entry before returning; an error from that write (for
// example an unsupported record type) propagates to the caller. A disabled
// dispatcher returns false immediately with no side effects.
func (d *Dispatcher) IsSpam(ctx context.Context, recordType forum.RecordType, data *forum.RecordPayload, sess *session.Session, opts Options) (bool, error) {
	if !d.enabled {
		return false, nil
	}
	if data == nil {
		data = &forum.RecordPayload{}
	}

	trusted, err := d.enrich(ctx, recordType, data, sess)
	if err != nil {
		return false, err
	}
	if trusted {
		return false, nil
	}

	check := &CheckContext{
		RecordType: recordType,
		Record:     data,
		Options:    opts,
		Session:    sess,
	}
	verdict := false
	for _, checker := range d.checkers {
		hit, err := checker.CheckSpam(ctx, check)
		if err != nil {
			// One broken heuristic must not mute the rest of the registry.
			d.logger.Warn("spam checker failed",
				zap.String("checker", checker.Name()),
				zap.String("record_type", recordType.String()),
				zap.Error(err))
			continue
		}
		verdict = verdict || hit
	}

	if verdict && opts.Log && d.moderation != nil {
		if err := d.moderation.LogSpam(ctx, recordType, data); err != nil {
			return verdict, err
		}
	}
	if verdict {
		d.logger.Info("record judged spam",
			zap.String("record_type", recordType.String()),
			zap.Int64("record_id", data.RecordID),
			zap.Int64("insert_user_id", data.InsertUserID))
	}
	return verdict, nil
}

// enrich fills author metadata onto the payload. The returned bool reports a
// trusted author (verified or admin) whose records bypass checking entirely.
func (d *Dispatcher) enrich(ctx context.Context, recordType forum.RecordType, data *forum.RecordPayload, sess *session.Session) (bool, error) {
	if recordType == forum.RecordTypeRegistration {
		if data.Username == "" {
			data.Username = data.Name
		}
	} else {
		if data.InsertUserID == 0 && sess.IsValid() {
			data.InsertUserID = sess.UserID
		}
		if data.InsertUserID != 0 {
			user, err := d.users.GetUser(ctx, data.InsertUserID)
			switch {
			case errors.Is(err, forum.ErrNotFound):
				// Missing author means the fields simply stay unset.
			case err != nil:
				return false, err
			default:
				if user.Verified || user.Admin {
					return true, nil
				}
				if data.Username == "" {
					data.Username = user.Name
				}
				if data.Email == "" {
					data.Email = user.Email
				}
				if data.IPAddress == "" {
					data.IPAddress = user.InsertIPAddress
				}
			}
		}
	}

	if data.Body == "" && data.Story != "" {
		data.Body = data.Story
	}

	decodeIPFields(data)

	if data.IPAddress == "" && sess != nil {
		data.IPAddress = remoteHost(sess.RemoteAddr)
	}
	return false, nil
}
