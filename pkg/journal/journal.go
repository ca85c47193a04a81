// Package journal records transaction history to durable storage.
//
// Every state transition and step outcome of a transaction is appended as an
// event, so an operator can reconstruct what a failed or rolled-back
// transaction did. Recording is best-effort from the engine's point of view:
// a journal outage never blocks or fails a transaction.
package journal

import (
	"context"
	"time"
)

// Event is one journal entry. Events for a transaction share its id and are
// ordered by sequence number.
type Event struct {
	Transaction string    `bson:"transaction" json:"transaction"`
	Seq         int       `bson:"seq" json:"seq"`
	State       string    `bson:"state" json:"state"`
	Step        string    `bson:"step,omitempty" json:"step,omitempty"`
	Detail      string    `bson:"detail,omitempty" json:"detail,omitempty"`
	Time        time.Time `bson:"time" json:"time"`
}

// Recorder appends transaction events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
	Close(ctx context.Context) error
}

// Nop discards every event. It is the default when no journal is configured.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
func (Nop) Close(context.Context) error         { return nil }

var _ Recorder = Nop{}
