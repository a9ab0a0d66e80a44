package flood

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/parleylabs/parley/internal/forum"
)

const (
	defaultMaxCount  = 5
	defaultWindow    = 30 * time.Second
	defaultCacheSize = 4096
	keyFormat        = "%d/%s"
)

// Action names used as flood-control bucket keys.
const (
	ActionRegistration = "registration"
	ActionComment      = "comment"
	ActionDiscussion   = "discussion"
	ActionMessage      = "conversation_message"
)

// LimiterConfig configures the per-user action rate limiter.
type LimiterConfig struct {
	Enabled   bool
	MaxCount  int
	Window    time.Duration
	CacheSize int
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Limiter enforces a sliding-window cap on how often a single user may
// perform one kind of action. Increment-and-check is atomic per
// (user, action) key; concurrent requests from the same user are exactly the
// case it defends against.
type Limiter struct {
	enabled  bool
	maxCount int
	window   time.Duration
	clock    func() time.Time
	logger   *zap.Logger

	mu      sync.Mutex
	buckets *lru.Cache[string, []time.Time]
}

// NewLimiter constructs a Limiter with defaults applied.
func NewLimiter(cfg LimiterConfig) (*Limiter, error) {
	maxCount := cfg.MaxCount
	if maxCount <= 0 {
		maxCount = defaultMaxCount
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultWindow
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	buckets, err := lru.New[string, []time.Time](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("flood: building bucket cache: %w", err)
	}
	return &Limiter{
		enabled:  cfg.Enabled,
		maxCount: maxCount,
		window:   window,
		clock:    clock,
		logger:   logger,
		buckets:  buckets,
	}, nil
}

// Check records one occurrence of action by userID and returns
// forum.ErrFloodControl when the count within the window would exceed the
// configured maximum. The rejected attempt is not recorded.
func (l *Limiter) Check(userID int64, action string) error {
	if userID == 0 {
		return nil
	}
	return l.CheckKey(fmt.Sprintf(keyFormat, userID, action), action)
}

// CheckKey is Check for callers without a user identity, such as guest
// registrations keyed by source address.
func (l *Limiter) CheckKey(key, action string) error {
	if !l.enabled || key == "" {
		return nil
	}
	now := l.clock()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	stamps, _ := l.buckets.Get(key)
	live := stamps[:0]
	for _, stamp := range stamps {
		if stamp.After(cutoff) {
			live = append(live, stamp)
		}
	}
	if len(live) >= l.maxCount {
		l.buckets.Add(key, live)
		l.logger.Warn("flood control triggered",
			zap.String("key", key),
			zap.String("action", action),
			zap.Int("count", len(live)))
		return fmt.Errorf("%w: %s", forum.ErrFloodControl, action)
	}
	live = append(live, now)
	l.buckets.Add(key, live)
	return nil
}

// Remaining reports how many more occurrences of action the user may perform
// within the current window.
func (l *Limiter) Remaining(userID int64, action string) int {
	if !l.enabled {
		return l.maxCount
	}
	key := fmt.Sprintf(keyFormat, userID, action)
	cutoff := l.clock().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	stamps, _ := l.buckets.Get(key)
	count := 0
	for _, stamp := range stamps {
		if stamp.After(cutoff) {
			count++
		}
	}
	if count >= l.maxCount {
		return 0
	}
	return l.maxCount - count
}
