package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"triage-assistant/internal/triage"
)

const responderPrompt = `You are a careful, friendly health triage assistant.
Answer in English, in at most a few short paragraphs. Never diagnose; suggest sensible next steps and when to see a doctor.
If the situation sounds like an emergency, tell the user to contact emergency services (112 in India) immediately.
Use the profile only to adjust tone and obvious safety caveats (allergies, pregnancy).
Context about this user follows as JSON.`

// Responder generates direct replies to non-interview turns.
type Responder struct {
	client *Client
}

func NewResponder(c *Client) *Responder {
	return &Responder{client: c}
}

func (r *Responder) GenerateResponse(ctx context.Context, text string, nlu *triage.NLUResult, sc triage.SessionContext) (string, error) {
	payload, err := json.Marshal(struct {
		Intent      triage.Intent `json:"intent,omitempty"`
		IsEmergency bool          `json:"is_emergency"`
		triage.SessionContext
	}{
		Intent:         intentOf(nlu),
		IsEmergency:    nlu != nil && nlu.IsEmergency,
		SessionContext: sc,
	})
	if err != nil {
		return "", err
	}

	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: responderPrompt + "\n" + string(payload)},
	}
	for _, m := range sc.PastMessages {
		role := string(m.Role)
		if role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	reply, err := r.client.send(ctx, openai.ChatCompletionRequest{
		Model:       r.client.model,
		Messages:    msgs,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("responder: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func intentOf(n *triage.NLUResult) triage.Intent {
	if n == nil {
		return ""
	}
	return n.Intent
}
