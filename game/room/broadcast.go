package room

import (
	"github.com/wricardo/mcp-training/shapesync/protocol"
)

// Sender delivers events to one connected client.
// Send must not block; a sender that cannot keep up drops or disconnects
// its own client.
type Sender interface {
	Send(ev protocol.Event)
	Close()
}

// broadcaster fans room events out to session senders. It is only used
// from the room worker, so events reach every sender in worker order.
type broadcaster struct {
	metrics *Metrics
}

func (b *broadcaster) to(s Sender, ev protocol.Event) {
	s.Send(ev)
	b.metrics.Events.WithLabelValues(string(ev.Type)).Inc()
}

// all sends ev to every member, in session id order.
func (b *broadcaster) all(members map[string]*member, order []string, ev protocol.Event) {
	for _, id := range order {
		if m, ok := members[id]; ok {
			b.to(m.sender, ev)
		}
	}
}
