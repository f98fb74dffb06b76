package realtime

// EventType tags a live event pushed to a connected client. The values are
// part of the wire contract with clients.
type EventType string

const (
	EventFriendRequestSent     EventType = "FRIEND_REQUEST_SENT"
	EventFriendRequestReceived EventType = "FRIEND_REQUEST_RECEIVED"
	EventFriendRequestAnswer   EventType = "FRIEND_REQUEST_ANSWER"
	EventFriendRequestRemoved  EventType = "FRIEND_REQUEST_REMOVED"
	EventMessageSent           EventType = "MESSAGE_SENT"
	EventMessageReceived       EventType = "MESSAGE_RECEIVED"
)

// Event is the payload delivered over a live connection. Data is free-form;
// the dispatcher does not validate its shape.
type Event struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"data"`
}
