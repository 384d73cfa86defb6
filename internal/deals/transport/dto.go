// Package transport holds the request and response shapes of the deals API.
package transport

import (
	catalog "salesflow_backend/internal/catalog/domain"
	"salesflow_backend/internal/deals/domain"
	"salesflow_backend/internal/deals/engine"
)

// Request DTOs
type StartConversationRequest struct {
	CustomerName string `json:"customerName" validate:"required,min=1,max=200"`
}

type SendMessageRequest struct {
	Text string `json:"text" validate:"required,min=1,max=4000"`
}

type MoveStageRequest struct {
	StageID           string `json:"stageId" validate:"required"`
	TriggerAutomation bool   `json:"triggerAutomation"`
}

// UpdateDealRequest is a partial update; nil fields are left untouched.
// CapturedData adds or overwrites the listed keys and never removes any.
type UpdateDealRequest struct {
	CustomerName *string          `json:"customerName,omitempty" validate:"omitempty,min=1,max=200"`
	Value        *float64         `json:"value,omitempty" validate:"omitempty,gte=0"`
	Currency     *string          `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	CapturedData map[string]string `json:"capturedData,omitempty" validate:"omitempty,max=50,dive,keys,min=1,max=100,endkeys,max=2000"`
}

type BoardQuery struct {
	Query    string `form:"q" validate:"max=200"`
	Stagnant bool   `form:"stagnant"`
}

// Response DTOs
type DealListResponse struct {
	Items []domain.Deal `json:"items"`
	Total int           `json:"total"`
}

type TurnResponse struct {
	Deal domain.Deal `json:"deal"`
	Turn engine.Turn `json:"turn"`
}

type BoardColumn struct {
	Stage catalog.Stage `json:"stage"`
	Deals []domain.Deal `json:"deals"`
	Count int           `json:"count"`
}

type BoardResponse struct {
	Columns []BoardColumn `json:"columns"`
	// Totals sums deal values per currency across the filtered board.
	Totals map[string]float64 `json:"totals"`
	// Unstaged holds deals whose stage is not in the pipeline.
	Unstaged []domain.Deal `json:"unstaged"`
}
