// Package engine runs one conversation turn against a deal: course
// detection, stage-gated field extraction, reply generation and quotation
// detection.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	catalog "salesflow_backend/internal/catalog/domain"
	"salesflow_backend/internal/deals/domain"
	"salesflow_backend/internal/deals/ports"
	"salesflow_backend/platform/logger"
)

// ReplySource records where the agent message of a turn came from.
type ReplySource string

const (
	ReplyFromModel    ReplySource = "model"
	ReplyFromFallback ReplySource = "fallback"
	ReplyNone         ReplySource = "none"
)

// Turn reports what a single Advance call changed.
type Turn struct {
	FromStageID    string            `json:"fromStageId"`
	ToStageID      string            `json:"toStageId"`
	ExtractedField string            `json:"extractedField,omitempty"`
	ExtractedValue string            `json:"extractedValue,omitempty"`
	SelectedCourse string            `json:"selectedCourse,omitempty"`
	Quotation      *domain.Quotation `json:"quotation,omitempty"`
	ReplySource    ReplySource       `json:"replySource"`
	Reply          string            `json:"reply,omitempty"`
	Notes          []string          `json:"notes"`
}

// StageChanged reports whether the turn moved the deal.
func (t Turn) StageChanged() bool { return t.FromStageID != t.ToStageID }

func (t *Turn) note(msg string) { t.Notes = append(t.Notes, msg) }

// Config holds engine options.
type Config struct {
	// FallbackReply substitutes for a failed generation. Empty disables it.
	FallbackReply string
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Engine is stateless across deals. It does not serialize concurrent
// Advance calls on the same deal; callers own that.
type Engine struct {
	catalog   ports.CatalogProvider
	extractor ports.FieldExtractor
	generator ports.ReplyGenerator
	fallback  string
	now       func() time.Time
	log       *logger.Logger
}

// New creates an engine. extractor and generator may be nil, which behaves
// like a model that always fails.
func New(cat ports.CatalogProvider, extractor ports.FieldExtractor, generator ports.ReplyGenerator, cfg Config, log *logger.Logger) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		catalog:   cat,
		extractor: extractor,
		generator: generator,
		fallback:  cfg.FallbackReply,
		now:       now,
		log:       log,
	}
}

// Advance applies one user message to deal and returns the updated copy.
// The input deal is never mutated. Model failures degrade the turn and are
// never returned as errors.
func (e *Engine) Advance(ctx context.Context, deal domain.Deal, text string) (domain.Deal, Turn) {
	d := deal.Clone()
	turn := Turn{FromStageID: d.StageID, Notes: make([]string, 0, 4)}
	log := e.log.WithContext(ctx).WithDeal(d.ID)

	d.Append(domain.NewMessage(domain.RoleUser, text, e.now()))

	snap, err := e.catalog.Snapshot(ctx)
	if err != nil {
		log.Warn("catalog unavailable, running turn without stage logic", "error", err)
		turn.note("catalog unavailable")
		snap = catalog.Snapshot{}
	}

	if course, ok := domain.DetectCourse(text, snap.Courses); ok {
		d.Capture(domain.CapturedCourseKey, course.Name)
		turn.SelectedCourse = course.Name
		turn.note("course interest: " + course.Name)
	}

	e.extract(ctx, &d, &turn, snap, text)
	turn.ToStageID = d.StageID

	history := append([]domain.ChatMessage(nil), d.ChatHistory[:len(d.ChatHistory)-1]...)
	reply, err := e.generate(ctx, text, history, snap)
	switch {
	case err == nil:
		d.Append(domain.NewMessage(domain.RoleAgent, reply, e.now()))
		turn.ReplySource = ReplyFromModel
		turn.Reply = reply
		if q, ok := domain.DetectQuotation(reply); ok {
			d.ApplyQuotation(q)
			turn.Quotation = &q
			turn.note("quotation detected")
		}
	case e.fallback != "":
		log.Warn("reply generation failed, using fallback", "error", err)
		d.Append(domain.NewMessage(domain.RoleAgent, e.fallback, e.now()))
		turn.ReplySource = ReplyFromFallback
		turn.Reply = e.fallback
	default:
		log.Warn("reply generation failed", "error", err)
		turn.ReplySource = ReplyNone
	}

	e.log.WithContext(ctx).DealTurn(d.ID, turn.FromStageID, turn.ToStageID, turn.ExtractedField != "", string(turn.ReplySource))
	return d, turn
}

// extract runs the stage gate. Unknown stages and unknown field keys are
// dangling references and skip extraction.
func (e *Engine) extract(ctx context.Context, d *domain.Deal, turn *Turn, snap catalog.Snapshot, text string) {
	stage, ok := snap.StageByID(d.StageID)
	if !ok {
		if d.StageID != "" && len(snap.Stages) > 0 {
			turn.note("stage " + d.StageID + " no longer exists")
		}
		return
	}
	if stage.RequiredInput == "" {
		return
	}
	prop, ok := snap.PropertyByKey(stage.RequiredInput)
	if !ok {
		turn.note("field " + stage.RequiredInput + " is not defined")
		return
	}
	if e.extractor == nil {
		turn.note("extraction disabled")
		return
	}

	value, err := e.extractor.Extract(ctx, text, prop)
	value = strings.TrimSpace(value)
	if err != nil || value == "" {
		if err != nil && !errors.Is(err, ports.ErrFieldNotFound) {
			e.log.WithContext(ctx).Warn("field extraction failed", "deal_id", d.ID, "field", prop.Key, "error", err)
		}
		turn.note(prop.Label + " not found in message")
		return
	}

	d.Capture(stage.RequiredInput, value)
	turn.ExtractedField = stage.RequiredInput
	turn.ExtractedValue = value

	next, ok := snap.NextStage(stage.ID)
	if !ok {
		turn.note("pipeline complete")
		return
	}
	d.StageID = next.ID
	turn.note("advanced " + stage.Name + " -> " + next.Name)
}

func (e *Engine) generate(ctx context.Context, text string, history []domain.ChatMessage, snap catalog.Snapshot) (string, error) {
	if e.generator == nil {
		return "", errors.New("reply generation disabled")
	}
	reply, err := e.generator.Generate(ctx, text, history, snap)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", errors.New("empty reply")
	}
	return reply, nil
}
