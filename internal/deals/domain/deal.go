// Package domain holds the deal aggregate and the pure text heuristics the
// conversation engine runs on it.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// UnmarshalJSON accepts "model" as an alias for agent, which is what older
// transcripts stored.
func (r *Role) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw {
	case string(RoleUser):
		*r = RoleUser
	case string(RoleAgent), "model":
		*r = RoleAgent
	default:
		return fmt.Errorf("unknown chat role %q", raw)
	}
	return nil
}

// ChatMessage is one entry of a deal transcript.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds a message with a fresh id.
func NewMessage(role Role, text string, at time.Time) ChatMessage {
	return ChatMessage{ID: uuid.NewString(), Role: role, Text: text, Timestamp: at}
}

// CapturedCourseKey is the captured-data key set by course detection.
const CapturedCourseKey = "selected_course"

// Deal is a sales conversation and the data captured from it.
type Deal struct {
	ID              string            `json:"id"`
	CustomerName    string            `json:"customerName"`
	StageID         string            `json:"stageId"`
	Value           float64           `json:"value"`
	Currency        string            `json:"currency"`
	LastInteraction time.Time         `json:"lastInteraction"`
	ChatHistory     []ChatMessage     `json:"chatHistory"`
	CapturedData    map[string]string `json:"capturedData"`
	Revision        int64             `json:"revision"`
}

// Clone returns a deep copy so callers can mutate without touching shared
// state.
func (d Deal) Clone() Deal {
	out := d
	out.ChatHistory = make([]ChatMessage, len(d.ChatHistory))
	copy(out.ChatHistory, d.ChatHistory)
	out.CapturedData = make(map[string]string, len(d.CapturedData))
	for k, v := range d.CapturedData {
		out.CapturedData[k] = v
	}
	return out
}

// Append adds a message to the transcript and refreshes LastInteraction.
func (d *Deal) Append(msg ChatMessage) {
	d.ChatHistory = append(d.ChatHistory, msg)
	d.Touch(msg.Timestamp)
}

// Capture writes a captured field.
func (d *Deal) Capture(key, value string) {
	if d.CapturedData == nil {
		d.CapturedData = make(map[string]string)
	}
	d.CapturedData[key] = value
}

// Touch refreshes the recency marker.
func (d *Deal) Touch(at time.Time) {
	d.LastInteraction = at
}

// SelectedCourse returns the course captured by detection, if any.
func (d Deal) SelectedCourse() string {
	return d.CapturedData[CapturedCourseKey]
}

// IsStagnant reports whether the deal has been idle for at least after.
func (d Deal) IsStagnant(now time.Time, after time.Duration) bool {
	if after <= 0 || d.LastInteraction.IsZero() {
		return false
	}
	return now.Sub(d.LastInteraction) >= after
}
