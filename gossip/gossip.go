// package gossip broadcasts pool events to in-process subscribers.  The
// webapp and the varz counters hang off this; so could anything else that
// wants to watch rounds without polling storage.
package gossip

import (
	"log"
	"sync"
	"time"

	"github.com/ts4z/tote/varz"
)

var (
	eventsPublished = varz.NewInt("eventsPublished")
	eventsDropped   = varz.NewInt("eventsDropped")
)

type EventType string

const (
	RoundCreated   EventType = "round-created"
	StakeRecorded  EventType = "stake-recorded"
	WinnerDeclared EventType = "winner-declared"
	RewardPaid     EventType = "reward-paid"
	RoundClosed    EventType = "round-closed"
	RoleChanged    EventType = "role-changed"
)

// Event is one observable pool happening.  Not every field is set for every
// type; zero values mean "not applicable".
type Event struct {
	Type       EventType
	SeqNo      int64
	Staker     string
	Competitor string
	Recipient  string
	Amount     int64
	At         time.Time
}

const subscriberBuffer = 64

type Gossiper struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func New() *Gossiper {
	return &Gossiper{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of future events and a cancel function.  The
// channel is buffered; a subscriber that stops draining loses events rather
// than blocking the publisher.
func (g *Gossiper) Subscribe() (<-chan Event, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.next
	g.next++
	ch := make(chan Event, subscriberBuffer)
	g.subs[id] = ch

	cancel := func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if ch, ok := g.subs[id]; ok {
			delete(g.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber that has room for it.
func (g *Gossiper) Publish(ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()

	eventsPublished.Add(1)
	for _, ch := range g.subs {
		select {
		case ch <- ev:
		default:
			eventsDropped.Add(1)
			log.Printf("warning: dropping %s event for slow subscriber", ev.Type)
		}
	}
}
