// Package events implements a typed pub/sub event bus carrying
// risk.alert.*, risk.action.*, plan.*, funds.job.* and emergency.* topics.
// Every emitted event is both logged and delivered to subscribers, so the
// Coordinator and the HTTP/WS adapter can react to it instead of only
// reading it back out of the log.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Topic identifies an event stream.
type Topic string

const (
	TopicAlertCreated Topic = "risk.alert.created"
	TopicAlertResolved Topic = "risk.alert.resolved"
	TopicActionCreated Topic = "risk.action.created"
	TopicActionCompleted Topic = "risk.action.completed"
	TopicActionFailed Topic = "risk.action.failed"
	TopicPlanCreated Topic = "plan.created"
	TopicOrderSubmitted Topic = "plan.order_submitted"
	TopicPlanCompleted Topic = "plan.completed"
	TopicPlanFailed Topic = "plan.failed"
	TopicPlanExpired Topic = "plan.expired"
	TopicPlanCancelled Topic = "plan.cancelled"
	TopicFundsJobCreated Topic = "funds.job.created"
	TopicFundsJobComplete Topic = "funds.job.completed"
	TopicFundsJobFailed Topic = "funds.job.failed"
	TopicEmergencyActive Topic = "emergency.activated"
	TopicEmergencyResumed Topic = "emergency.resumed"
)

// Event is one published message.
type Event struct {
	Topic Topic `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Data map[string]interface{} `json:"data"`
}

// Bus fans events out to subscribers and logs every emission; the log is a
// side-channel rather than the only channel.
type Bus struct {
	mu sync.RWMutex
	subs map[Topic][]chan Event
	log zerolog.Logger
}

// NewBus constructs an empty Bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
 subs: make(map[Topic][]chan Event),
 log: log.With().Str("component", "events").Logger(),
	}
}

// Subscribe returns a buffered channel of events for topic. The channel is
// never closed by the bus; callers that stop reading simply stop receiving
// (sends are non-blocking and drop on a full buffer rather than stalling a
// publisher).
func (b *Bus) Subscribe(topic Topic) <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()
	return ch
}

// Publish emits an event on topic with the given data, logging it and
// delivering it to every current subscriber of that topic.
func (b *Bus) Publish(topic Topic, data map[string]interface{}) {
	ev := Event{Topic: topic, Timestamp: time.Now().UTC(), Data: data}

	payload, _ := json.Marshal(ev)
	b.log.Info().Str("topic", string(topic)).RawJSON("event", payload).Msg("event published")

	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()
	for _, ch := range subs {
 select {
 case ch <- ev:
 default:
 b.log.Warn().Str("topic", string(topic)).Msg("subscriber channel full, dropping event")
 }
	}
}
