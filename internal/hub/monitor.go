package hub

import (
	"sort"

	"github.com/abhigit-saha/hack36-sub000/internal/model"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub     *Hub
	janitor *Janitor
}

// NewMonitorService creates a new monitor service. janitor may be nil.
func NewMonitorService(hub *Hub, janitor *Janitor) *MonitorService {
	return &MonitorService{hub: hub, janitor: janitor}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	clients := ms.getClientList()
	rooms := ms.hub.rooms.Snapshot()

	connectionStats := model.ConnectionStats{TotalConnected: len(clients)}
	for _, c := range clients {
		if c.ConversationID != "" {
			connectionStats.TotalJoined++
		}
	}

	// Determine overall health status
	status := "healthy"
	if connectionStats.TotalConnected == 0 {
		status = "idle"
	}

	resp := model.MonitorResponse{
		Status:      status,
		Connections: connectionStats,
		Rooms: model.RoomStats{
			TotalRooms:  len(rooms),
			RoomDetails: rooms,
		},
		Clients: clients,
	}
	if ms.janitor != nil {
		resp.Janitor = ms.janitor.Stats()
	}
	return resp
}

// getClientList returns list of all connected clients
func (ms *MonitorService) getClientList() []model.ClientInfo {
	live := ms.hub.Clients()
	clients := make([]model.ClientInfo, 0, len(live))

	for _, c := range live {
		info := model.ClientInfo{ClientID: c.id}
		if joined, ok := c.Joined(); ok {
			info.UserID = joined.UserID
			info.UserType = string(joined.UserType)
			info.ConversationID = joined.ChatID
		} else if c.authed {
			info.UserID = c.identity.ID
			info.UserType = string(c.identity.Type)
		}
		clients = append(clients, info)
	}

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ClientID < clients[j].ClientID
	})
	return clients
}
