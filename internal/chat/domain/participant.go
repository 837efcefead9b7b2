package domain

// Participant a connected, named identity within a room.
// Owned by the room's presence set; the gateway only holds a reference.
type Participant struct {
	Name         string `json:"name"`
	AvatarRef    string `json:"avatar_ref"`
	ConnectionID string `json:"-"`
	JoinedAt     int64  `json:"joined_at"` // unix milliseconds
}

// SessionContext identity handed to the gateway at connect time,
// extracted from the signed token rather than ambient storage.
type SessionContext struct {
	Name      string
	Family    string
	AvatarRef string
}
