// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"salesflow_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Deal Domain Events
// =============================================================================

// DealTurnCompleted is published after a conversation turn has been applied.
type DealTurnCompleted struct {
	BaseEvent
	DealID         string `json:"dealId"`
	StageID        string `json:"stageId"`
	ExtractedField string `json:"extractedField,omitempty"`
	SelectedCourse string `json:"selectedCourse,omitempty"`
	ReplySource    string `json:"replySource"`
	MessageCount   int    `json:"messageCount"`
}

func (e DealTurnCompleted) EventName() string { return "deals.turn.completed" }

// DealStageChanged is published whenever a deal moves between stages, either
// by extraction or by a manual move.
type DealStageChanged struct {
	BaseEvent
	DealID      string `json:"dealId"`
	FromStageID string `json:"fromStageId"`
	ToStageID   string `json:"toStageId"`
	Manual      bool   `json:"manual"`
	Automated   bool   `json:"automated"`
}

func (e DealStageChanged) EventName() string { return "deals.stage.changed" }

// DealQuotationDetected is published when an agent reply contained a price.
type DealQuotationDetected struct {
	BaseEvent
	DealID   string  `json:"dealId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func (e DealQuotationDetected) EventName() string { return "deals.quotation.detected" }

// DealDeleted is published after a deal was removed.
type DealDeleted struct {
	BaseEvent
	DealID string `json:"dealId"`
}

func (e DealDeleted) EventName() string { return "deals.deleted" }

// DealEventNames lists every deal event, for sinks that forward all of them.
var DealEventNames = []string{
	DealTurnCompleted{}.EventName(),
	DealStageChanged{}.EventName(),
	DealQuotationDetected{}.EventName(),
	DealDeleted{}.EventName(),
}
