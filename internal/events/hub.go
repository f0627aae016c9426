package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/mesa-digital/api/internal/ws"
)

// Broadcaster is satisfied by *ws.Hub.
type Broadcaster interface {
	Broadcast(room string, message []byte)
}

// HubPublisher pushes events to websocket rooms: every event goes to the
// staff room, and events tied to a table also go to that table's room.
type HubPublisher struct {
	hub Broadcaster
}

func NewHubPublisher(hub Broadcaster) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(ctx context.Context, e Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		zap.L().Error("marshal event", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	p.hub.Broadcast(ws.StaffRoom, msg)
	if e.TableID > 0 {
		p.hub.Broadcast(ws.TableRoom(e.TableID), msg)
	}
}
