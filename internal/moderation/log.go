package moderation

import "time"

// OperationSpam marks log entries produced by positive spam verdicts.
const OperationSpam = "Spam"

// GroupBy key names recorded on log entries. The key determines the
// de-duplication bucket: repeated entries for the same actor or record
// collapse into one row with an incremented CountGroup.
const (
	GroupByRecordID        = "RecordID"
	GroupByRecordIPAddress = "RecordIPAddress"
)

// SpamLog is one moderation-queue entry capturing a record that was judged
// spam, including its full pre-purge snapshot.
type SpamLog struct {
	LogID           int64     `gorm:"column:log_id;primaryKey;autoIncrement"`
	Operation       string    `gorm:"column:operation;size:20;not null"`
	RecordType      string    `gorm:"column:record_type;size:50;not null"`
	RecordID        int64     `gorm:"column:record_id;not null;default:0"`
	RecordUserID    int64     `gorm:"column:record_user_id;not null;default:0"`
	RecordIPAddress string    `gorm:"column:record_ip_address;size:45;not null;default:''"`
	RecordData      string    `gorm:"column:record_data;type:text;not null"`
	GroupBy         string    `gorm:"column:group_by;size:255;not null;default:''"`
	GroupKey        string    `gorm:"column:group_key;size:255;not null;default:'';index:idx_spam_logs_group"`
	CountGroup      int64     `gorm:"column:count_group;not null;default:1"`
	DateInserted    time.Time `gorm:"column:date_inserted;not null"`
	DateUpdated     time.Time `gorm:"column:date_updated;not null"`
}

func (SpamLog) TableName() string {
	return "spam_logs"
}
