package forum

import "strings"

// RecordType identifies the kind of user-generated content a record holds.
type RecordType string

const (
	RecordTypeComment             RecordType = "Comment"
	RecordTypeDiscussion          RecordType = "Discussion"
	RecordTypeRegistration        RecordType = "Registration"
	RecordTypeActivity            RecordType = "Activity"
	RecordTypeActivityComment     RecordType = "ActivityComment"
	RecordTypeConversationMessage RecordType = "ConversationMessage"
	RecordTypeUser                RecordType = "User"
	RecordTypeConversation        RecordType = "Conversation"
)

// ParseRecordType normalizes raw input to a known RecordType. The empty
// string is returned for unknown values.
func ParseRecordType(raw string) RecordType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "comment":
		return RecordTypeComment
	case "discussion":
		return RecordTypeDiscussion
	case "registration":
		return RecordTypeRegistration
	case "activity":
		return RecordTypeActivity
	case "activitycomment":
		return RecordTypeActivityComment
	case "conversationmessage":
		return RecordTypeConversationMessage
	case "user":
		return RecordTypeUser
	case "conversation":
		return RecordTypeConversation
	default:
		return ""
	}
}

// String returns the canonical spelling of the record type.
func (t RecordType) String() string {
	return string(t)
}

// ApplicationStatus enumerates the lifecycle states of a membership
// application.
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusApproved ApplicationStatus = "approved"
	ApplicationStatusDeclined ApplicationStatus = "declined"
)

// ParseApplicationStatus validates a status submitted through the API.
func ParseApplicationStatus(raw string) (ApplicationStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ApplicationStatusApproved):
		return ApplicationStatusApproved, nil
	case string(ApplicationStatusDeclined):
		return ApplicationStatusDeclined, nil
	default:
		return "", NewValidationError("status", "status must be approved or declined")
	}
}
