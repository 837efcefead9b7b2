package domain

// Action websocket request action
type Action string

const (
	// SetIdentity websocket action set-identity
	SetIdentity Action = "set-identity"
	// JoinRoom websocket action join-room
	JoinRoom Action = "join-room"
	// LeaveRoom websocket action leave-room
	LeaveRoom Action = "leave-room"
	// SendMessage websocket action send-message
	SendMessage Action = "send-message"
	// UserTyping websocket action user-typing
	UserTyping Action = "user-typing"
	// ReadMessage websocket action read-message
	ReadMessage Action = "read-message"
)

// Server pushed event names.
const (
	// EventReceiveMessage full message fan-out
	EventReceiveMessage = "receive-message"
	// EventMessageStatus status-only update
	EventMessageStatus = "message-status"
	// EventOnlineUsers full presence snapshot
	EventOnlineUsers = "online-users-updated"
	// EventUserJoined join notice
	EventUserJoined = "user-joined"
	// EventUserLeft leave notice
	EventUserLeft = "user-left"
	// EventUserTyping typing indicator
	EventUserTyping = "user-typing"
)

// WSRequest websocket Request
type WSRequest struct {
	Action    string     `json:"action"`
	Room      string     `json:"room"`
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Content   string     `json:"content"`
	IsTyping  bool       `json:"is_typing"`
	MessageID string     `json:"message_id"`
	Voice     *VoiceBody `json:"voice,omitempty"`
	File      *FileBody  `json:"file,omitempty"`
}

// WSEvent websocket Response / push event
type WSEvent struct {
	Event   string                 `json:"event"`
	Room    string                 `json:"room,omitempty"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// RoomEnvelope carries a broadcast message between nodes over pub/sub.
// Origin identifies the publishing node so it can skip its own replay.
type RoomEnvelope struct {
	Origin  string  `json:"origin"`
	Room    string  `json:"room"`
	Message Message `json:"message"`
}
