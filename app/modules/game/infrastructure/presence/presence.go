// Package gamepresence tracks which players are connected to a game.
//
// Presence is per connection and never persisted. Every connection
// broadcasts a join on the channel's topic; peers that see a join
// re-announce themselves so a late joiner converges on the full set.
package gamepresence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// Kind is the type of presence event delivered to handlers.
type Kind string

const (
	KindSync  Kind = "sync"
	KindJoin  Kind = "join"
	KindLeave Kind = "leave"
)

const (
	wireJoin     = "join"
	wireAnnounce = "announce"
	wireLeave    = "leave"
)

// Topic returns the watermill topic of a presence channel.
func Topic(channelKey string) string {
	return "presence." + channelKey
}

// Identity is what a connection advertises about itself.
type Identity struct {
	PlayerID uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// Event is delivered to handlers. Members is the full set after the change.
type Event struct {
	Kind     Kind
	Identity Identity
	Members  []Identity
}

// Handler receives presence events on the channel's goroutine.
type Handler func(Event)

type wireMessage struct {
	Kind         string   `json:"kind"`
	ConnectionID string   `json:"connection_id"`
	Identity     Identity `json:"identity"`
}

// Service opens presence channels over a watermill transport.
type Service struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

// New creates a presence service.
func New(publisher message.Publisher, subscriber message.Subscriber, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{publisher: publisher, subscriber: subscriber, logger: logger}
}

// Channel is one connection's view of a presence channel.
type Channel struct {
	key          string
	self         Identity
	connectionID string

	svc    *Service
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	peers    map[string]Identity // by connection id, including self
	handlers map[Kind][]Handler
	left     bool
}

// Join subscribes to the channel, adds identity to it and announces the
// connection to peers. Handlers registered with On before the first
// message arrives see every event; a sync event is emitted for the local
// join once the subscription is active.
func (s *Service) Join(ctx context.Context, channelKey string, identity Identity) (*Channel, error) {
	subCtx, cancel := context.WithCancel(ctx)
	messages, err := s.subscriber.Subscribe(subCtx, Topic(channelKey))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to presence channel %s: %w", channelKey, err)
	}

	c := &Channel{
		key:          channelKey,
		self:         identity,
		connectionID: watermill.NewUUID(),
		svc:          s,
		cancel:       cancel,
		done:         make(chan struct{}),
		peers:        map[string]Identity{},
		handlers:     map[Kind][]Handler{},
	}
	c.peers[c.connectionID] = identity

	go c.loop(subCtx, messages)

	if err := c.send(ctx, wireJoin); err != nil {
		c.cancel()
		<-c.done
		return nil, err
	}
	return c, nil
}

// On registers a handler for a kind of event.
func (c *Channel) On(kind Kind, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], h)
}

// Members returns the distinct identities present, ordered by player id.
func (c *Channel) Members() []Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.membersLocked()
}

// Self returns the identity this connection joined with.
func (c *Channel) Self() Identity {
	return c.self
}

// Leave announces the departure and stops the subscription. It is safe to
// call more than once.
func (c *Channel) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.left {
		c.mu.Unlock()
		return nil
	}
	c.left = true
	c.mu.Unlock()

	err := c.send(ctx, wireLeave)
	c.cancel()
	<-c.done
	return err
}

func (c *Channel) send(ctx context.Context, kind string) error {
	payload, err := json.Marshal(wireMessage{Kind: kind, ConnectionID: c.connectionID, Identity: c.self})
	if err != nil {
		return fmt.Errorf("failed to encode presence message: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := c.svc.publisher.Publish(Topic(c.key), msg); err != nil {
		return fmt.Errorf("failed to publish presence %s: %w", kind, err)
	}
	return nil
}

func (c *Channel) loop(ctx context.Context, messages <-chan *message.Message) {
	defer close(c.done)
	for msg := range messages {
		var wm wireMessage
		err := json.Unmarshal(msg.Payload, &wm)
		msg.Ack()
		if err != nil {
			c.svc.logger.WarnContext(ctx, "Dropping malformed presence message",
				slog.String("channel", c.key),
				slog.Any("error", err),
			)
			continue
		}
		c.apply(ctx, wm)
	}
}

func (c *Channel) apply(ctx context.Context, wm wireMessage) {
	if wm.ConnectionID == c.connectionID {
		if wm.Kind == wireJoin {
			c.emit(Event{Kind: KindSync, Identity: c.self})
		}
		return
	}

	switch wm.Kind {
	case wireJoin, wireAnnounce:
		c.mu.Lock()
		_, known := c.peers[wm.ConnectionID]
		c.peers[wm.ConnectionID] = wm.Identity
		c.mu.Unlock()

		if wm.Kind == wireJoin {
			// Tell the newcomer we are here.
			if err := c.send(ctx, wireAnnounce); err != nil {
				c.svc.logger.WarnContext(ctx, "Failed to re-announce presence",
					slog.String("channel", c.key),
					slog.Any("error", err),
				)
			}
		}
		if !known {
			c.emit(Event{Kind: KindJoin, Identity: wm.Identity})
			c.emit(Event{Kind: KindSync, Identity: wm.Identity})
		}

	case wireLeave:
		c.mu.Lock()
		_, known := c.peers[wm.ConnectionID]
		delete(c.peers, wm.ConnectionID)
		c.mu.Unlock()

		if known {
			c.emit(Event{Kind: KindLeave, Identity: wm.Identity})
			c.emit(Event{Kind: KindSync, Identity: wm.Identity})
		}
	}
}

func (c *Channel) emit(ev Event) {
	c.mu.Lock()
	ev.Members = c.membersLocked()
	handlers := append([]Handler(nil), c.handlers[ev.Kind]...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (c *Channel) membersLocked() []Identity {
	seen := make(map[uuid.UUID]bool, len(c.peers))
	out := make([]Identity, 0, len(c.peers))
	for _, id := range c.peers {
		if seen[id.PlayerID] {
			continue
		}
		seen[id.PlayerID] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID.String() < out[j].PlayerID.String() })
	return out
}

// PlayerIDs extracts the player ids of a member list.
func PlayerIDs(members []Identity) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.PlayerID)
	}
	return ids
}
