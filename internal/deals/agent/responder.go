package agent

import (
	"context"
	"fmt"
	"time"

	catalog "salesflow_backend/internal/catalog/domain"
	"salesflow_backend/internal/deals/domain"
	"salesflow_backend/internal/deals/ports"

	"google.golang.org/genai"
)

// Responder implements ports.ReplyGenerator.
type Responder struct {
	client      *genai.Client
	model       string
	temperature float32
	now         func() time.Time
}

// NewResponder creates a responder. The persona's model, when set,
// overrides defaultModel.
func NewResponder(client *genai.Client, defaultModel string, temperature float32) *Responder {
	return &Responder{client: client, model: defaultModel, temperature: temperature, now: time.Now}
}

var _ ports.ReplyGenerator = (*Responder)(nil)

// Generate produces the agent's next message.
func (r *Responder) Generate(ctx context.Context, userMessage string, history []domain.ChatMessage, snapshot catalog.Snapshot) (string, error) {
	model := r.model
	if snapshot.Agent.Model != "" {
		model = snapshot.Agent.Model
	}

	contents := HistoryContents(history)
	contents = append(contents, genai.NewContentFromText(userMessage, genai.RoleUser))

	temp := r.temperature
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(BuildSystemPrompt(snapshot, r.now()), genai.RoleUser),
		Temperature:       &temp,
	}

	resp, err := r.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("generate reply: empty response")
	}
	return text, nil
}

// HistoryContents maps a transcript to model turns.
func HistoryContents(history []domain.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		if m.Text == "" {
			continue
		}
		var role genai.Role = genai.RoleUser
		if m.Role == domain.RoleAgent {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	return contents
}
