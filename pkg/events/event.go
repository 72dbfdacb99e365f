package events

import "time"

// Event defines the contract for audit events about chat activity.
type Event interface {
	// EventType returns the subject suffix, e.g. "chat.answer_applied".
	EventType() string

	Payload() map[string]interface{}

	Timestamp() time.Time
}

const (
	ChatSessionOpened     = "chat.session_opened"
	ChatSessionClosed     = "chat.session_closed"
	ChatQuestionSubmitted = "chat.question_submitted"
	ChatAnswerApplied     = "chat.answer_applied"
	ChatAnswerFailed      = "chat.answer_failed"
)

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewChatEvent builds an event about one view's conversation.
func NewChatEvent(eventType, viewID, documentID string, data map[string]interface{}) BaseEvent {
	payload := map[string]interface{}{
		"view_id":     viewID,
		"document_id": documentID,
	}
	for k, v := range data {
		payload[k] = v
	}
	return BaseEvent{
		Type:       eventType,
		Data:       payload,
		OccurredAt: time.Now(),
	}
}
