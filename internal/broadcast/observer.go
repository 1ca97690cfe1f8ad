package broadcast

import (
	"context"
	"sync"

	"lanedesk/pkg/kafka"
	"lanedesk/pkg/logger"
)

// StateObserver consumes the lane-state topic and keeps the last known
// state per lane. Idle kiosks and wall displays read from this instead
// of polling the engine; because every state message is a full
// projection, a freshly started observer is consistent after one
// message per lane.
type StateObserver struct {
	mu     sync.RWMutex
	states map[string]*LaneState
	log    *logger.Logger
}

func NewStateObserver(log *logger.Logger) *StateObserver {
	return &StateObserver{
		states: make(map[string]*LaneState),
		log:    log,
	}
}

// Handle is the kafka.MessageHandler wired into the consumer.
func (o *StateObserver) Handle(ctx context.Context, msg kafka.Message) error {
	if msg.EventType() != EventState {
		return nil
	}

	var state LaneState
	if err := msg.DecodeValue(&state); err != nil {
		o.log.Error("Failed to decode lane state", "key", msg.Key, "error", err)
		return err
	}

	o.mu.Lock()
	prev := o.states[state.LaneID]
	if prev == nil || !state.ProjectedAt.Before(prev.ProjectedAt) {
		o.states[state.LaneID] = &state
	}
	o.mu.Unlock()

	return nil
}

func (o *StateObserver) State(laneID string) (*LaneState, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	state, ok := o.states[laneID]
	return state, ok
}

func (o *StateObserver) Lanes() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	lanes := make([]string, 0, len(o.states))
	for lane := range o.states {
		lanes = append(lanes, lane)
	}
	return lanes
}
