package record

import "time"

// User is a forum account. Applicants awaiting approval are Users whose
// Confirmed flag is false; Deleted marks a soft-deleted account.
type User struct {
	UserID           int64     `gorm:"column:user_id;primaryKey;autoIncrement"`
	Name             string    `gorm:"column:name;size:50;not null;index:idx_users_name"`
	Email            string    `gorm:"column:email;size:100;not null;index:idx_users_email"`
	Password         string    `gorm:"column:password;size:100;not null;default:''"`
	DiscoveryText    string    `gorm:"column:discovery_text;type:text;not null;default:''"`
	Verified         bool      `gorm:"column:verified;not null;default:false"`
	Admin            bool      `gorm:"column:admin;not null;default:false"`
	Confirmed        bool      `gorm:"column:confirmed;not null;default:true"`
	Deleted          bool      `gorm:"column:deleted;not null;default:false"`
	Banned           bool      `gorm:"column:banned;not null;default:false"`
	InsertIPAddress  string    `gorm:"column:insert_ip_address;size:45;not null;default:''"`
	CountDiscussions int64     `gorm:"column:count_discussions;not null;default:0"`
	CountComments    int64     `gorm:"column:count_comments;not null;default:0"`
	DateInserted     time.Time `gorm:"column:date_inserted;not null"`
}

func (User) TableName() string {
	return "users"
}

// Discussion is a top-level forum thread.
type Discussion struct {
	DiscussionID    int64     `gorm:"column:discussion_id;primaryKey;autoIncrement"`
	CategoryID      int64     `gorm:"column:category_id;not null;default:0;index:idx_discussions_category"`
	Name            string    `gorm:"column:name;size:100;not null"`
	Body            string    `gorm:"column:body;type:text;not null"`
	InsertUserID    int64     `gorm:"column:insert_user_id;not null;index:idx_discussions_insert_user"`
	InsertIPAddress string    `gorm:"column:insert_ip_address;size:45;not null;default:''"`
	CountComments   int64     `gorm:"column:count_comments;not null;default:0"`
	DateInserted    time.Time `gorm:"column:date_inserted;not null"`
}

func (Discussion) TableName() string {
	return "discussions"
}

// Comment is a reply within a discussion.
type Comment struct {
	CommentID       int64     `gorm:"column:comment_id;primaryKey;autoIncrement"`
	DiscussionID    int64     `gorm:"column:discussion_id;not null;index:idx_comments_discussion"`
	Body            string    `gorm:"column:body;type:text;not null"`
	InsertUserID    int64     `gorm:"column:insert_user_id;not null;index:idx_comments_insert_user"`
	InsertIPAddress string    `gorm:"column:insert_ip_address;size:45;not null;default:''"`
	DateInserted    time.Time `gorm:"column:date_inserted;not null"`
}

func (Comment) TableName() string {
	return "comments"
}

// Conversation is a private thread between a fixed set of users.
type Conversation struct {
	ConversationID   int64     `gorm:"column:conversation_id;primaryKey;autoIncrement"`
	Subject          string    `gorm:"column:subject;size:255;not null;default:''"`
	InsertUserID     int64     `gorm:"column:insert_user_id;not null"`
	CountMessages    int64     `gorm:"column:count_messages;not null;default:0"`
	CountTotalUsers  int64     `gorm:"column:count_total_users;not null;default:0"`
	LastMessageID    int64     `gorm:"column:last_message_id;not null;default:0"`
	DateInserted     time.Time `gorm:"column:date_inserted;not null"`
	DateLastActivity time.Time `gorm:"column:date_last_activity;not null"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationMessage is one message inside a conversation.
type ConversationMessage struct {
	MessageID       int64     `gorm:"column:message_id;primaryKey;autoIncrement"`
	ConversationID  int64     `gorm:"column:conversation_id;not null;index:idx_conversation_messages_conversation"`
	Body            string    `gorm:"column:body;type:text;not null"`
	InsertUserID    int64     `gorm:"column:insert_user_id;not null"`
	InsertIPAddress string    `gorm:"column:insert_ip_address;size:45;not null;default:''"`
	DateInserted    time.Time `gorm:"column:date_inserted;not null"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

// UserConversation associates a user with a conversation they take part in.
type UserConversation struct {
	ConversationID    int64     `gorm:"column:conversation_id;primaryKey"`
	UserID            int64     `gorm:"column:user_id;primaryKey;index:idx_user_conversations_user"`
	CountReadMessages int64     `gorm:"column:count_read_messages;not null;default:0"`
	LastMessageID     int64     `gorm:"column:last_message_id;not null;default:0"`
	Deleted           bool      `gorm:"column:deleted;not null;default:false"`
	DateLastViewed    time.Time `gorm:"column:date_last_viewed"`
}

func (UserConversation) TableName() string {
	return "user_conversations"
}

// Activity is a queued notification destined for one user's feed.
type Activity struct {
	ActivityID     int64     `gorm:"column:activity_id;primaryKey;autoIncrement"`
	ActivityType   string    `gorm:"column:activity_type;size:50;not null"`
	NotifyUserID   int64     `gorm:"column:notify_user_id;not null;index:idx_activities_notify_user"`
	ActivityUserID int64     `gorm:"column:activity_user_id;not null"`
	HeadlineFormat string    `gorm:"column:headline_format;size:255;not null;default:''"`
	Story          string    `gorm:"column:story;type:text;not null;default:''"`
	Route          string    `gorm:"column:route;size:255;not null;default:''"`
	RecordType     string    `gorm:"column:record_type;size:50;not null;default:''"`
	RecordID       int64     `gorm:"column:record_id;not null;default:0"`
	Notified       bool      `gorm:"column:notified;not null;default:false"`
	Emailed        bool      `gorm:"column:emailed;not null;default:false"`
	DateInserted   time.Time `gorm:"column:date_inserted;not null"`
}

func (Activity) TableName() string {
	return "activities"
}
