package changelog

import (
	"time"

	"github.com/zjrosen/flowstate/internal/log"
	"github.com/zjrosen/flowstate/internal/pubsub"
)

// Recorder fans a change out to every configured sink and republishes it on
// a broker for in-process observers. Sink errors are logged, never returned:
// the mutation that produced the change has already succeeded.
type Recorder struct {
	sinks  []Sink
	broker *pubsub.Broker[Change]
}

// NewRecorder creates a recorder over the given sinks.
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{
		sinks:  sinks,
		broker: pubsub.NewBroker[Change](),
	}
}

// Broker exposes the change event stream for subscribers (context trackers,
// UIs, tests).
func (r *Recorder) Broker() *pubsub.Broker[Change] {
	return r.broker
}

// Record stamps and appends a change. Best-effort by contract.
func (r *Recorder) Record(change Change) {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now()
	}
	for _, sink := range r.sinks {
		if err := sink.Append(change); err != nil {
			log.ErrorErr(log.CatChangelog, "change sink append failed", err,
				"op", change.Op, "kind", change.Kind, "id", change.ID)
		}
	}
	r.broker.Publish(pubsub.EventType(change.Op), change)
}

// Close closes the broker and every sink.
func (r *Recorder) Close() error {
	r.broker.Close()
	var firstErr error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
