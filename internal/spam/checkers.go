package spam

import (
	"context"
	"errors"
	"strings"

	"github.com/parleylabs/parley/internal/flood"
	"github.com/parleylabs/parley/internal/forum"
)

// https://en.wikipedia.org/wiki/GTUBE
const gtubeString = "XJS*C4JDBQADN1.NSBN3*2IDNEN*GTUBE-STANDARD-ANTI-UBE-TEST-EMAIL*C.34X"

// KeywordChecker flags records whose text fields contain a blacklisted term.
// Matching is case-insensitive substring; the GTUBE test string always
// matches regardless of the configured terms.
type KeywordChecker struct {
	Terms []string
}

// NewKeywordChecker lowercases and trims the configured terms once.
func NewKeywordChecker(terms []string) *KeywordChecker {
	normalized := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			normalized = append(normalized, term)
		}
	}
	return &KeywordChecker{Terms: normalized}
}

func (c *KeywordChecker) Name() string {
	return "keyword"
}

func (c *KeywordChecker) CheckSpam(_ context.Context, check *CheckContext) (bool, error) {
	for _, text := range []string{check.Record.Body, check.Record.Name, check.Record.Username, check.Record.DiscoveryText} {
		if text == "" {
			continue
		}
		if strings.Contains(text, gtubeString) {
			return true, nil
		}
		lowered := strings.ToLower(text)
		for _, term := range c.Terms {
			if strings.Contains(lowered, term) {
				return true, nil
			}
		}
	}
	return false, nil
}

// FloodChecker flags records from authors posting faster than the flood
// limiter allows for that record type.
type FloodChecker struct {
	Limiter *flood.Limiter
}

func (c *FloodChecker) Name() string {
	return "flood"
}

func (c *FloodChecker) CheckSpam(_ context.Context, check *CheckContext) (bool, error) {
	if c.Limiter == nil || check.Record.InsertUserID == 0 {
		return false, nil
	}
	action := floodActionFor(check.RecordType)
	if action == "" {
		return false, nil
	}
	err := c.Limiter.Check(check.Record.InsertUserID, action)
	if errors.Is(err, forum.ErrFloodControl) {
		return true, nil
	}
	return false, err
}

func floodActionFor(recordType forum.RecordType) string {
	switch recordType {
	case forum.RecordTypeComment, forum.RecordTypeActivityComment:
		return flood.ActionComment
	case forum.RecordTypeDiscussion:
		return flood.ActionDiscussion
	case forum.RecordTypeConversationMessage:
		return flood.ActionMessage
	case forum.RecordTypeRegistration:
		return flood.ActionRegistration
	default:
		return ""
	}
}

// CheckerFunc adapts a plain function into a named Checker, mostly for
// wiring site-specific heuristics and tests.
type CheckerFunc struct {
	CheckerName string
	Func        func(ctx context.Context, check *CheckContext) (bool, error)
}

func (c CheckerFunc) Name() string {
	return c.CheckerName
}

func (c CheckerFunc) CheckSpam(ctx context.Context, check *CheckContext) (bool, error) {
	return c.Func(ctx, check)
}
