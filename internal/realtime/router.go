package realtime

import (
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var deliveredEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "realtime_events_delivered_total",
	Help: "Events pushed to connected clients, by event name.",
}, []string{"event"})

var droppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "realtime_events_dropped_total",
	Help: "Events dropped because the target buffer was full or the target was offline.",
}, []string{"event"})

// Outbound is the server-push frame shape, identical to request replies.
type Outbound struct {
	Event   string `json:"event"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
}

// Router delivers events to users by id. Call sites never enumerate
// connections; offline targets are skipped silently.
type Router struct {
	reg    *Registry
	logger *zap.SugaredLogger
}

func NewRouter(reg *Registry, logger *zap.SugaredLogger) *Router {
	return &Router{reg: reg, logger: logger}
}

func (r *Router) Unicast(userID int64, event string, data any) {
	frame, ok := r.encode(event, data)
	if !ok {
		return
	}
	r.deliver(userID, event, frame)
}

func (r *Router) Multicast(userIDs []int64, event string, data any) {
	frame, ok := r.encode(event, data)
	if !ok {
		return
	}
	for _, id := range userIDs {
		r.deliver(id, event, frame)
	}
}

func (r *Router) Broadcast(event string, data any) {
	frame, ok := r.encode(event, data)
	if !ok {
		return
	}
	for _, c := range r.reg.snapshot() {
		if c.Send(frame) {
			deliveredEvents.WithLabelValues(event).Inc()
		} else {
			droppedEvents.WithLabelValues(event).Inc()
		}
	}
}

func (r *Router) deliver(userID int64, event string, frame []byte) {
	c, online := r.reg.Get(userID)
	if !online {
		droppedEvents.WithLabelValues(event).Inc()
		return
	}
	if !c.Send(frame) {
		droppedEvents.WithLabelValues(event).Inc()
		r.logger.Warnw("send buffer full, dropping event", "event", event, "user_id", userID)
		return
	}
	deliveredEvents.WithLabelValues(event).Inc()
}

func (r *Router) encode(event string, data any) ([]byte, bool) {
	frame, err := json.Marshal(Outbound{Event: event, Success: true, Data: data})
	if err != nil {
		r.logger.Errorw("event marshal failed", "event", event, "err", err)
		return nil, false
	}
	return frame, true
}
