package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"`      // "healthy" or "idle"
	Connections ConnectionStats `json:"connections"` // Client connection stats
	Rooms       RoomStats       `json:"rooms"`       // Room stats
	Clients     []ClientInfo    `json:"clients"`     // List of connected clients
	Janitor     JanitorStats    `json:"janitor"`
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalConnected int `json:"total_connected"` // Clients with a live socket
	TotalJoined    int `json:"total_joined"`    // Clients currently joined to a room
}

// RoomStats holds room statistics
type RoomStats struct {
	TotalRooms  int        `json:"total_rooms"`
	RoomDetails []RoomInfo `json:"room_details"`
}

// RoomInfo contains information about a single room
type RoomInfo struct {
	ConversationID string   `json:"conversation_id"`
	Subscribers    int      `json:"subscribers"`
	SubscriberIDs  []string `json:"subscriber_ids"`
}

// ClientInfo contains information about a connected client
type ClientInfo struct {
	ClientID       string `json:"client_id"`
	UserID         string `json:"user_id,omitempty"`
	UserType       string `json:"user_type,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// JanitorStats reports the last staleness sweep.
type JanitorStats struct {
	LastRunAt   string `json:"last_run_at,omitempty"` // RFC3339
	LastReaped  int    `json:"last_reaped"`
	TotalReaped int    `json:"total_reaped"`
}

// MonitorEnvelope wraps every monitor API reply.
type MonitorEnvelope struct {
	HttpStatusCode int
	ResponseBody   *MonitorResponse
	IsSuccess      bool
	Message        string
}
