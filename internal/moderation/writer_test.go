package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/parleylabs/parley/internal/forum"
	"github.com/parleylabs/parley/internal/record"
)

func newTestWriter(t *testing.T, threshold int64) (*Writer, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:parley_moderation_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&record.User{}, &record.Discussion{}, &record.Comment{}, &SpamLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	store, err := record.NewStore(record.StoreConfig{
		Database: db,
		Clock:    func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	writer, err := NewWriter(WriterConfig{
		Store:                  store,
		DeleteCommentThreshold: threshold,
		Clock:                  func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("failed to construct writer: %v", err)
	}
	return writer, db
}

func seedDiscussion(t *testing.T, db *gorm.DB, commentCount int) *record.Discussion {
	t.Helper()
	discussion := &record.Discussion{
		Name:            "suspicious thread",
		Body:            "buy now",
		InsertUserID:    7,
		InsertIPAddress: "10.1.2.3",
		CountComments:   int64(commentCount),
		DateInserted:    time.Unix(1699990000, 0).UTC(),
	}
	if err := db.Create(discussion).Error; err != nil {
		t.Fatalf("failed to seed discussion: %v", err)
	}
	for i := 0; i < commentCount; i++ {
		comment := &record.Comment{
			DiscussionID: discussion.DiscussionID,
			Body:         fmt.Sprintf("reply %d", i+1),
			InsertUserID: int64(100 + i),
			DateInserted: time.Unix(1699990100, 0).UTC(),
		}
		if err := db.Create(comment).Error; err != nil {
			t.Fatalf("failed to seed comment: %v", err)
		}
	}
	return discussion
}

func countLogs(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&SpamLog{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count log entries: %v", err)
	}
	return count
}

func TestLogSpamGroupByPerRecordType(t *testing.T) {
	cases := []struct {
		recordType forum.RecordType
		data       forum.RecordPayload
		wantGroup  string
	}{
		{forum.RecordTypeRegistration, forum.RecordPayload{Username: "bob", IPAddress: "10.0.0.9"}, GroupByRecordIPAddress},
		{forum.RecordTypeActivity, forum.RecordPayload{RecordID: 42, Body: "spam"}, GroupByRecordID},
		{forum.RecordTypeActivityComment, forum.RecordPayload{RecordID: 43, Body: "spam"}, GroupByRecordID},
	}
	for _, tc := range cases {
		t.Run(string(tc.recordType), func(t *testing.T) {
			writer, db := newTestWriter(t, 10)
			data := tc.data
			if err := writer.LogSpam(context.Background(), tc.recordType, &data); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var entry SpamLog
			if err := db.First(&entry).Error; err != nil {
				t.Fatalf("failed to load log entry: %v", err)
			}
			if entry.Operation != OperationSpam {
				t.Fatalf("expected operation Spam, got %q", entry.Operation)
			}
			if entry.RecordType != tc.recordType.String() {
				t.Fatalf("expected record type %q, got %q", tc.recordType, entry.RecordType)
			}
			groups := DecodeGroupBy(entry.GroupBy)
			if len(groups) != 1 || groups[0] != tc.wantGroup {
				t.Fatalf("expected group by [%s], got %v", tc.wantGroup, groups)
			}
			if count := countLogs(t, db); count != 1 {
				t.Fatalf("expected exactly one log entry, got %d", count)
			}
		})
	}
}

func TestLogSpamCollapsesSameBucket(t *testing.T) {
	writer, db := newTestWriter(t, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data := forum.RecordPayload{Username: "mallory", IPAddress: "10.0.0.9"}
		if err := writer.LogSpam(ctx, forum.RecordTypeRegistration, &data); err != nil {
			t.Fatalf("unexpected error on attempt %d: %v", i, err)
		}
	}

	if count := countLogs(t, db); count != 1 {
		t.Fatalf("expected repeated registrations to collapse into one entry, got %d", count)
	}
	var entry SpamLog
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("failed to load log entry: %v", err)
	}
	if entry.CountGroup != 3 {
		t.Fatalf("expected count group 3, got %d", entry.CountGroup)
	}
}

func TestFlagForReviewDeletesCommentAndLogs(t *testing.T) {
	writer, db := newTestWriter(t, 10)
	seedDiscussion(t, db, 1)

	var comment record.Comment
	if err := db.First(&comment).Error; err != nil {
		t.Fatalf("failed to load seeded comment: %v", err)
	}

	data := forum.RecordPayload{RecordID: comment.CommentID}
	if err := writer.LogSpam(context.Background(), forum.RecordTypeComment, &data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var remaining int64
	if err := db.Model(&record.Comment{}).Count(&remaining).Error; err != nil {
		t.Fatalf("failed to count comments: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected flagged comment to be purged, %d remain", remaining)
	}
	if count := countLogs(t, db); count != 1 {
		t.Fatalf("expected exactly one log entry, got %d", count)
	}

	var entry SpamLog
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("failed to load log entry: %v", err)
	}
	var snapshot map[string]any
	if err := json.Unmarshal([]byte(entry.RecordData), &snapshot); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snapshot["Body"] != "reply 1" {
		t.Fatalf("expected snapshot to capture pre-purge body, got %v", snapshot["Body"])
	}
}

func TestFlagForReviewDiscussionAtThresholdIsNotPurged(t *testing.T) {
	const threshold = 5
	writer, db := newTestWriter(t, threshold)
	discussion := seedDiscussion(t, db, threshold)

	data := forum.RecordPayload{RecordID: discussion.DiscussionID}
	if err := writer.LogSpam(context.Background(), forum.RecordTypeDiscussion, &data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var remaining int64
	if err := db.Model(&record.Discussion{}).Count(&remaining).Error; err != nil {
		t.Fatalf("failed to count discussions: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected large discussion to stay live, %d remain", remaining)
	}
	if count := countLogs(t, db); count != 1 {
		t.Fatalf("expected exactly one log entry, got %d", count)
	}
}

func TestFlagForReviewDiscussionBelowThresholdPurgesWithComments(t *testing.T) {
	const threshold = 5
	writer, db := newTestWriter(t, threshold)
	discussion := seedDiscussion(t, db, threshold-1)

	data := forum.RecordPayload{RecordID: discussion.DiscussionID}
	if err := writer.LogSpam(context.Background(), forum.RecordTypeDiscussion, &data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var remaining int64
	if err := db.Model(&record.Discussion{}).Count(&remaining).Error; err != nil {
		t.Fatalf("failed to count discussions: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected discussion to be purged, %d remain", remaining)
	}

	var entry SpamLog
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("failed to load log entry: %v", err)
	}
	var snapshot map[string]any
	if err := json.Unmarshal([]byte(entry.RecordData), &snapshot); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	nested, ok := snapshot["Comments"].([]any)
	if !ok {
		t.Fatalf("expected nested comments collection, got %T", snapshot["Comments"])
	}
	if len(nested) != threshold-1 {
		t.Fatalf("expected %d nested comments, got %d", threshold-1, len(nested))
	}
}

func TestFlagForReviewAppliesOverrides(t *testing.T) {
	writer, db := newTestWriter(t, 10)
	discussion := seedDiscussion(t, db, 0)

	data := forum.RecordPayload{
		RecordID: discussion.DiscussionID,
		Name:     "edited title",
		Body:     "edited body",
	}
	if err := writer.LogSpam(context.Background(), forum.RecordTypeDiscussion, &data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entry SpamLog
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("failed to load log entry: %v", err)
	}
	var snapshot map[string]any
	if err := json.Unmarshal([]byte(entry.RecordData), &snapshot); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snapshot["Name"] != "edited title" {
		t.Fatalf("expected submitted name in snapshot, got %v", snapshot["Name"])
	}
	if snapshot["Body"] != "edited body" {
		t.Fatalf("expected submitted body in snapshot, got %v", snapshot["Body"])
	}
}

func TestFlagForReviewRejectsUnsupportedTypes(t *testing.T) {
	writer, _ := newTestWriter(t, 10)

	err := writer.FlagForReview(context.Background(), forum.RecordTypeActivity, 1, nil)
	if !errors.Is(err, forum.ErrUnsupportedType) {
		t.Fatalf("expected unsupported type error, got %v", err)
	}
}

func TestFlagForReviewMissingRecordLeavesNoLog(t *testing.T) {
	writer, db := newTestWriter(t, 10)

	err := writer.FlagForReview(context.Background(), forum.RecordTypeComment, 999, nil)
	if !errors.Is(err, forum.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if count := countLogs(t, db); count != 0 {
		t.Fatalf("expected no log entries, got %d", count)
	}
}
