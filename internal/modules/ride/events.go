// README: Event sinks for ride transitions (PostgreSQL audit log, Kafka topic).
package ride

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventSink receives every recorded transition. Failures are logged by the caller and never
// undo the transition.
type EventSink interface {
	Append(ctx context.Context, e Event) error
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []EventSink

func (m MultiSink) Append(ctx context.Context, e Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PGEventLog adapts the PostgreSQL ride_events table to EventSink.
type PGEventLog struct {
	store *PGStore
}

func NewPGEventLog(store *PGStore) *PGEventLog {
	return &PGEventLog{store: store}
}

func (l *PGEventLog) Append(ctx context.Context, e Event) error {
	return l.store.AppendEvent(ctx, &e)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes transitions keyed by ride id, so one ride's events stay ordered.
type KafkaSink struct {
	w messageWriter
}

func NewKafkaSink(w *kafka.Writer) *KafkaSink {
	return &KafkaSink{w: w}
}

type eventMessage struct {
	RideID    string    `json:"rideId"`
	Category  string    `json:"category"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Deleted   bool      `json:"deleted,omitempty"`
	ActorType string    `json:"actorType"`
	ActorID   string    `json:"actorId,omitempty"`
	At        time.Time `json:"at"`
}

func (k *KafkaSink) Append(ctx context.Context, e Event) error {
	msg := eventMessage{
		RideID:    string(e.RideID),
		Category:  string(e.Category),
		From:      string(e.FromStatus),
		To:        string(e.ToStatus),
		Deleted:   e.Deleted,
		ActorType: e.ActorType,
		At:        e.CreatedAt.UTC(),
	}
	if e.ActorID != nil {
		msg.ActorID = string(*e.ActorID)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.RideID),
		Value: payload,
		Time:  e.CreatedAt,
	})
}
