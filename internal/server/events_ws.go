package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aristath/rpcp/internal/events"
)

// EventHub fans the typed event bus out to connected operator consoles over
// a single shared /ws/events endpoint, using gorilla/websocket.
type EventHub struct {
	bus *events.Bus
	upgrader websocket.Upgrader
	log zerolog.Logger

	topics []events.Topic
}

// DefaultTopics is every topic an operator console cares about.
func DefaultTopics() []events.Topic {
	return []events.Topic{
 events.TopicAlertCreated, events.TopicAlertResolved,
 events.TopicActionCreated, events.TopicActionCompleted, events.TopicActionFailed,
 events.TopicPlanCreated, events.TopicOrderSubmitted, events.TopicPlanCompleted,
 events.TopicPlanFailed, events.TopicPlanExpired, events.TopicPlanCancelled,
 events.TopicFundsJobCreated, events.TopicFundsJobComplete, events.TopicFundsJobFailed,
 events.TopicEmergencyActive, events.TopicEmergencyResumed,
	}
}

// NewEventHub constructs an EventHub over topics. Origin checking is
// disabled (CheckOrigin always true): the operator console is trusted
// same-deployment traffic behind the cors-gated REST surface, not a public
// endpoint.
func NewEventHub(bus *events.Bus, topics []events.Topic, log zerolog.Logger) *EventHub {
	return &EventHub{
 bus: bus,
 topics: topics,
 log: log.With().Str("component", "events_ws").Logger(),
 upgrader: websocket.Upgrader{
 CheckOrigin: func(r *http.Request) bool { return true },
 },
	}
}

// ServeHTTP upgrades the connection and forwards every event on h.topics
// until the client disconnects.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
 h.log.Warn().Err(err).Msg("websocket upgrade failed")
 return
	}
	defer conn.Close()

	subs := make([]<-chan events.Event, len(h.topics))
	for i, t := range h.topics {
 subs[i] = h.bus.Subscribe(t)
	}

	merged := make(chan events.Event, 256)
	var wg sync.WaitGroup
	done := make(chan struct{})
	defer close(done)
	for _, sub := range subs {
 wg.Add(1)
 go func(sub <-chan events.Event) {
 defer wg.Done()
 for {
 select {
 case ev := <-sub:
 select {
 case merged <- ev:
 case <-done:
 return
 }
 case <-done:
 return
 }
 }
 }(sub)
	}

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
 conn.SetReadDeadline(time.Now().Add(60 * time.Second))
 return nil
	})
	go h.drainPings(conn, done)

	for {
 select {
 case ev := <-merged:
 if err := conn.WriteJSON(ev); err != nil {
 return
 }
 case <-done:
 return
 }
	}
}

// drainPings reads (and discards) client frames so control frames (pings,
// close) are processed by gorilla's read loop, and exits once the
// connection errors or the handler's done channel closes.
func (h *EventHub) drainPings(conn *websocket.Conn, done <-chan struct{}) {
	for {
 if _, _, err := conn.ReadMessage(); err != nil {
 return
 }
 select {
 case <-done:
 return
 default:
 }
	}
}
