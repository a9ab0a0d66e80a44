package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parleylabs/parley/internal/forum"
	"github.com/parleylabs/parley/internal/record"
)

const defaultDeleteCommentThreshold = 10

var errMissingStore = errors.New("moderation: record store is required")

// WriterConfig describes the dependencies for constructing a Writer.
type WriterConfig struct {
	Store *record.Store
	// DeleteCommentThreshold is the discussion size at or above which a
	// flagged discussion is logged but left live rather than purged.
	DeleteCommentThreshold int64
	Clock                  func() time.Time
	Logger                 *zap.Logger
}

// Writer turns positive spam verdicts into moderation-queue entries. Small
// content records are snapshotted and purged; records too large to purge
// safely are logged in place.
type Writer struct {
	store           *record.Store
	deleteThreshold int64
	clock           func() time.Time
	logger          *zap.Logger
}

// NewWriter validates the configuration and constructs a Writer.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	threshold := cfg.DeleteCommentThreshold
	if threshold <= 0 {
		threshold = defaultDeleteCommentThreshold
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:           cfg.Store,
		deleteThreshold: threshold,
		clock:           clock,
		logger:          logger,
	}, nil
}

// LogSpam records the side effects of a positive verdict. Comments and
// discussions with a resolvable record ID go through FlagForReview; every
// other record type is written directly to the moderation log.
func (w *Writer) LogSpam(ctx context.Context, recordType forum.RecordType, data *forum.RecordPayload) error {
	if data == nil {
		data = &forum.RecordPayload{}
	}
	groupBy := groupByFor(recordType)

	switch recordType {
	case forum.RecordTypeComment, forum.RecordTypeDiscussion:
		if data.RecordID > 0 {
			return w.FlagForReview(ctx, recordType, data.RecordID, data)
		}
	}

	entry := entryFromPayload(recordType, data, groupBy)
	return w.insertEntry(ctx, w.store, entry)
}

// FlagForReview snapshots a live comment or discussion into the moderation
// log and purges the live record. A discussion whose comment count has
// reached the delete threshold is logged but left live; below the threshold
// its comments are attached to the snapshot so reviewers see the whole
// thread. The snapshot is always taken before the delete, and the whole flow
// runs inside one storage transaction.
func (w *Writer) FlagForReview(ctx context.Context, recordType forum.RecordType, id int64, override *forum.RecordPayload) error {
	if recordType != forum.RecordTypeComment && recordType != forum.RecordTypeDiscussion {
		return fmt.Errorf("%w: %s", forum.ErrUnsupportedType, recordType)
	}

	return w.store.DB().Transaction(func(tx *gorm.DB) error {
		txStore := w.store.WithTx(tx)

		snapshot, insertUserID, ipAddress, deleteRow, err := w.snapshotRecord(ctx, txStore, recordType, id)
		if err != nil {
			return err
		}

		if override != nil {
			if override.Name != "" {
				snapshot["Name"] = override.Name
			}
			if override.Body != "" {
				snapshot["Body"] = override.Body
			}
		}

		if deleteRow {
			if err := w.deleteRecord(ctx, txStore, recordType, id); err != nil {
				return err
			}
		}

		entry := SpamLog{
			Operation:       OperationSpam,
			RecordType:      recordType.String(),
			RecordID:        id,
			RecordUserID:    insertUserID,
			RecordIPAddress: ipAddress,
			GroupBy:         encodeGroupBy([]string{GroupByRecordID}),
			GroupKey:        fmt.Sprintf("%s/%d", recordType, id),
		}
		if err := setEntryData(&entry, snapshot); err != nil {
			return err
		}
		if err := w.insertEntry(ctx, txStore, entry); err != nil {
			return err
		}

		w.logger.Info("record flagged for review",
			zap.String("record_type", recordType.String()),
			zap.Int64("record_id", id),
			zap.Bool("purged", deleteRow))
		return nil
	})
}

func (w *Writer) snapshotRecord(ctx context.Context, store *record.Store, recordType forum.RecordType, id int64) (map[string]any, int64, string, bool, error) {
	deleteRow := true

	switch recordType {
	case forum.RecordTypeComment:
		comment, err := store.GetComment(ctx, id)
		if err != nil {
			return nil, 0, "", false, fmt.Errorf("moderation: loading comment %d: %w", id, err)
		}
		return commentSnapshot(comment), comment.InsertUserID, comment.InsertIPAddress, deleteRow, nil

	case forum.RecordTypeDiscussion:
		discussion, err := store.GetDiscussion(ctx, id)
		if err != nil {
			return nil, 0, "", false, fmt.Errorf("moderation: loading discussion %d: %w", id, err)
		}
		snapshot := discussionSnapshot(discussion)
		if discussion.CountComments >= w.deleteThreshold {
			// Too large to safely snapshot and delete. Leave it live.
			deleteRow = false
		} else if discussion.CountComments > 0 {
			comments, err := store.CommentsForDiscussion(ctx, id)
			if err != nil {
				return nil, 0, "", false, fmt.Errorf("moderation: loading comments of discussion %d: %w", id, err)
			}
			nested := make([]any, 0, len(comments))
			for i := range comments {
				nested = append(nested, commentSnapshot(&comments[i]))
			}
			snapshot["Comments"] = nested
		}
		return snapshot, discussion.InsertUserID, discussion.InsertIPAddress, deleteRow, nil
	}

	return nil, 0, "", false, fmt.Errorf("%w: %s", forum.ErrUnsupportedType, recordType)
}

func (w *Writer) deleteRecord(ctx context.Context, store *record.Store, recordType forum.RecordType, id int64) error {
	switch recordType {
	case forum.RecordTypeComment:
		return store.DeleteComment(ctx, id)
	case forum.RecordTypeDiscussion:
		return store.DeleteDiscussion(ctx, id)
	}
	return fmt.Errorf("%w: %s", forum.ErrUnsupportedType, recordType)
}

// insertEntry writes a log entry, collapsing it into an existing row when
// one already occupies the same de-duplication bucket.
func (w *Writer) insertEntry(ctx context.Context, store *record.Store, entry SpamLog) error {
	now := w.clock().UTC()
	entry.DateInserted = now
	entry.DateUpdated = now
	if entry.CountGroup <= 0 {
		entry.CountGroup = 1
	}

	db := store.DB().WithContext(ctx)
	if entry.GroupKey != "" {
		var existing SpamLog
		err := db.Where("operation = ? AND record_type = ? AND group_key = ?",
			entry.Operation, entry.RecordType, entry.GroupKey).
			Take(&existing).Error
		if err == nil {
			updates := map[string]any{
				"count_group":  existing.CountGroup + 1,
				"record_data":  entry.RecordData,
				"date_updated": now,
			}
			if err := db.Model(&SpamLog{}).Where("log_id = ?", existing.LogID).Updates(updates).Error; err != nil {
				return fmt.Errorf("moderation: collapsing log entry: %w", err)
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("moderation: checking log bucket: %w", err)
		}
	}

	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("moderation: inserting log entry: %w", err)
	}
	return nil
}

func groupByFor(recordType forum.RecordType) []string {
	switch recordType {
	case forum.RecordTypeRegistration:
		return []string{GroupByRecordIPAddress}
	case forum.RecordTypeComment, forum.RecordTypeDiscussion,
		forum.RecordTypeActivity, forum.RecordTypeActivityComment:
		return []string{GroupByRecordID}
	default:
		return nil
	}
}

func entryFromPayload(recordType forum.RecordType, data *forum.RecordPayload, groupBy []string) SpamLog {
	entry := SpamLog{
		Operation:       OperationSpam,
		RecordType:      recordType.String(),
		RecordID:        data.RecordID,
		RecordUserID:    data.InsertUserID,
		RecordIPAddress: data.IPAddress,
		GroupBy:         encodeGroupBy(groupBy),
	}
	for _, key := range groupBy {
		switch key {
		case GroupByRecordID:
			if data.RecordID > 0 {
				entry.GroupKey = fmt.Sprintf("%s/%d", recordType, data.RecordID)
			}
		case GroupByRecordIPAddress:
			if data.IPAddress != "" {
				entry.GroupKey = fmt.Sprintf("%s/%s", recordType, data.IPAddress)
			}
		}
	}
	snapshot := payloadSnapshot(data)
	// Marshal of map[string]any with scalar leaves cannot fail.
	_ = setEntryData(&entry, snapshot)
	return entry
}

func setEntryData(entry *SpamLog, snapshot map[string]any) error {
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("moderation: encoding record snapshot: %w", err)
	}
	entry.RecordData = string(encoded)
	return nil
}

func encodeGroupBy(groupBy []string) string {
	return strings.Join(groupBy, ",")
}

// DecodeGroupBy splits the stored GroupBy column back into key names.
func DecodeGroupBy(stored string) []string {
	if stored == "" {
		return nil
	}
	return strings.Split(stored, ",")
}

func payloadSnapshot(data *forum.RecordPayload) map[string]any {
	snapshot := map[string]any{}
	for key, value := range data.Extra {
		snapshot[key] = value
	}
	if data.RecordID > 0 {
		snapshot["RecordID"] = data.RecordID
	}
	if data.InsertUserID > 0 {
		snapshot["InsertUserID"] = data.InsertUserID
	}
	if data.Username != "" {
		snapshot["Username"] = data.Username
	}
	if data.Name != "" {
		snapshot["Name"] = data.Name
	}
	if data.Email != "" {
		snapshot["Email"] = data.Email
	}
	if data.IPAddress != "" {
		snapshot["IPAddress"] = data.IPAddress
	}
	if data.Body != "" {
		snapshot["Body"] = data.Body
	}
	if data.Story != "" {
		snapshot["Story"] = data.Story
	}
	if data.DiscoveryText != "" {
		snapshot["DiscoveryText"] = data.DiscoveryText
	}
	return snapshot
}

func commentSnapshot(comment *record.Comment) map[string]any {
	return map[string]any{
		"CommentID":       comment.CommentID,
		"DiscussionID":    comment.DiscussionID,
		"Body":            comment.Body,
		"InsertUserID":    comment.InsertUserID,
		"InsertIPAddress": comment.InsertIPAddress,
		"DateInserted":    comment.DateInserted.UTC().Format(time.RFC3339),
	}
}

func discussionSnapshot(discussion *record.Discussion) map[string]any {
	return map[string]any{
		"DiscussionID":    discussion.DiscussionID,
		"CategoryID":      discussion.CategoryID,
		"Name":            discussion.Name,
		"Body":            discussion.Body,
		"InsertUserID":    discussion.InsertUserID,
		"InsertIPAddress": discussion.InsertIPAddress,
		"CountComments":   discussion.CountComments,
		"DateInserted":    discussion.DateInserted.UTC().Format(time.RFC3339),
	}
}
