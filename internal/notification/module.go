// Package notification pushes deal changes to connected browsers. It
// subscribes to the deal store and the event bus so domain modules never
// know about the transport.
package notification

import (
	"context"

	"salesflow_backend/internal/deals/store"
	"salesflow_backend/internal/events"
	apphttp "salesflow_backend/internal/http"
	"salesflow_backend/internal/notification/sse"
	"salesflow_backend/platform/logger"
)

// ChangeSource is the store's subscription surface.
type ChangeSource interface {
	Subscribe(fn store.Listener) func()
}

// Module relays deal changes over SSE.
type Module struct {
	sse         *sse.Service
	unsubscribe func()
	log         *logger.Logger
}

// New creates the module and subscribes it to source.
func New(source ChangeSource, log *logger.Logger) *Module {
	m := &Module{sse: sse.New(log), log: log}
	m.unsubscribe = source.Subscribe(m.OnChange)
	return m
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes mounts the stream endpoint.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/deals/stream", m.sse.Handler())
}

// SSE returns the underlying stream service.
func (m *Module) SSE() *sse.Service { return m.sse }

// OnChange maps a store change to a stream event.
func (m *Module) OnChange(change store.Change) {
	switch change.Kind {
	case store.ChangeUpserted:
		m.sse.Publish(sse.Event{
			Type:   sse.EventDealUpserted,
			DealID: change.ID,
			Data:   change.Deal,
		})
	case store.ChangeDeleted:
		m.sse.Publish(sse.Event{Type: sse.EventDealDeleted, DealID: change.ID})
	}
}

// RegisterHandlers subscribes to domain events worth surfacing as toasts.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.DealStageChanged{}.EventName(), m)
	bus.Subscribe(events.DealQuotationDetected{}.EventName(), m)
}

// Handle implements events.Handler.
func (m *Module) Handle(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.DealStageChanged:
		m.sse.Publish(sse.Event{Type: sse.EventStageChanged, DealID: e.DealID, Data: e})
	case events.DealQuotationDetected:
		m.sse.Publish(sse.Event{Type: sse.EventQuotationDetected, DealID: e.DealID, Data: e})
	}
	return nil
}

// Close detaches from the store and disconnects clients.
func (m *Module) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.sse.Close()
}

var _ apphttp.Module = (*Module)(nil)
