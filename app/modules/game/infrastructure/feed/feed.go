// Package gamefeed publishes row changes of the game tables and lets
// clients subscribe to them with a filter.
//
// Each table has its own topic, "feed.<table>". Events on one topic are
// delivered in publish order. There is no ordering across tables.
package gamefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// EventType is the kind of row change.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Table names the tables that emit change events.
type Table string

const (
	TableGames        Table = "games"
	TableGameLocation Table = "game_location"
	TableGuesses      Table = "guesses"
	TableUserGame     Table = "user_game"
)

// Topic returns the watermill topic for a table.
func Topic(table Table) string {
	return "feed." + string(table)
}

// Event is one row change. Old and New hold the JSON encoded row, either
// may be empty.
type Event struct {
	Type  EventType       `json:"type"`
	Table Table           `json:"table"`
	Old   json.RawMessage `json:"old,omitempty"`
	New   json.RawMessage `json:"new,omitempty"`
}

// DecodeNew unmarshals the new row into v.
func (e Event) DecodeNew(v any) error {
	if len(e.New) == 0 {
		return fmt.Errorf("event %s on %s has no new row", e.Type, e.Table)
	}
	return json.Unmarshal(e.New, v)
}

// DecodeOld unmarshals the old row into v.
func (e Event) DecodeOld(v any) error {
	if len(e.Old) == 0 {
		return fmt.Errorf("event %s on %s has no old row", e.Type, e.Table)
	}
	return json.Unmarshal(e.Old, v)
}

// Publisher emits change events.
type Publisher interface {
	Publish(ctx context.Context, table Table, typ EventType, oldRow, newRow any) error
}

// Subscriber streams change events. The channel closes when ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, table Table, pred Predicate, types ...EventType) (<-chan Event, error)
}

// Feed implements Publisher and Subscriber on watermill.
type Feed struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
	buffer     int
}

var (
	_ Publisher  = (*Feed)(nil)
	_ Subscriber = (*Feed)(nil)
)

// New creates a feed over the given watermill publisher and subscriber.
func New(publisher message.Publisher, subscriber message.Subscriber, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		publisher:  publisher,
		subscriber: subscriber,
		logger:     logger,
		buffer:     32,
	}
}

func (f *Feed) Publish(ctx context.Context, table Table, typ EventType, oldRow, newRow any) error {
	ev := Event{Type: typ, Table: table}
	var err error
	if ev.Old, err = encodeRow(oldRow); err != nil {
		return fmt.Errorf("failed to encode old row: %w", err)
	}
	if ev.New, err = encodeRow(newRow); err != nil {
		return fmt.Errorf("failed to encode new row: %w", err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("table", string(table))
	msg.Metadata.Set("event_type", string(typ))
	msg.SetContext(ctx)

	if err := f.publisher.Publish(Topic(table), msg); err != nil {
		return fmt.Errorf("failed to publish %s event on %s: %w", typ, table, err)
	}
	return nil
}

func (f *Feed) Subscribe(ctx context.Context, table Table, pred Predicate, types ...EventType) (<-chan Event, error) {
	messages, err := f.subscriber.Subscribe(ctx, Topic(table))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
	}

	wanted := make(map[EventType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	out := make(chan Event, f.buffer)
	go func() {
		defer close(out)
		for msg := range messages {
			ev, err := DecodeMessage(msg)
			if err != nil {
				f.logger.WarnContext(ctx, "Dropping malformed feed event",
					slog.String("table", string(table)),
					slog.String("message_uuid", msg.UUID),
					slog.Any("error", err),
				)
				msg.Ack()
				continue
			}
			msg.Ack()

			if len(wanted) > 0 && !wanted[ev.Type] {
				continue
			}
			if !pred.Match(ev) {
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// DecodeMessage reads the event carried by a feed message.
func DecodeMessage(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode feed event %s: %w", msg.UUID, err)
	}
	return ev, nil
}

func encodeRow(row any) (json.RawMessage, error) {
	if row == nil {
		return nil, nil
	}
	return json.Marshal(row)
}

// Predicate is an equality filter on one column of the changed row. The
// zero value matches everything.
type Predicate struct {
	Column string
	Value  string
}

// Eq builds an equality predicate.
func Eq(column string, value any) Predicate {
	return Predicate{Column: column, Value: fmt.Sprint(value)}
}

// ForGame filters a table's events to one game. The games table is keyed
// by id, the others by game_id.
func ForGame(table Table, gameID uuid.UUID) Predicate {
	if table == TableGames {
		return Eq("id", gameID)
	}
	return Eq("game_id", gameID)
}

// Match evaluates the predicate against the new row, or the old row for
// deletes.
func (p Predicate) Match(ev Event) bool {
	if p.Column == "" {
		return true
	}
	row := ev.New
	if len(row) == 0 {
		row = ev.Old
	}
	if len(row) == 0 {
		return false
	}

	var fields map[string]any
	if err := json.Unmarshal(row, &fields); err != nil {
		return false
	}
	v, ok := fields[p.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == p.Value
}
