package models

// EventType names a chat lifecycle change pushed over the event feed
type EventType string

const (
	EventChatCreated      EventType = "chat_created"
	EventChatRenamed      EventType = "chat_renamed"
	EventChatDeleted      EventType = "chat_deleted"
	EventMessagesAppended EventType = "messages_appended"
)

// Event is published to every connection of the owning user
type Event struct {
	Type     EventType `json:"type"`
	ChatID   string    `json:"chatId"`
	Name     string    `json:"name,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}
