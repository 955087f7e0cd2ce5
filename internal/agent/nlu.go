package agent

import (
	"context"
	"fmt"
	"strings"

	"triage-assistant/internal/triage"
)

const nluPrompt = `You are the language-understanding stage of a health triage assistant.
Classify the user's message and extract symptoms. The message may be in any Indian language or English.
Respond with a JSON object only:
{"intent": one of "symptom_query", "general_health_query", "emergency", "greeting", "other",
 "is_emergency": true if the message describes a possibly life-threatening situation,
 "entities": [{"text": symptom name in English, lowercase, "entity_type": "symptom"}]}`

// NLU classifies utterances with a chat model and backs the result with
// a red-flag keyword check.
type NLU struct {
	client *Client
}

func NewNLU(c *Client) *NLU {
	return &NLU{client: c}
}

func (n *NLU) Process(ctx context.Context, text, lang string) (*triage.NLUResult, error) {
	var out triage.NLUResult
	user := fmt.Sprintf("Language: %s\nMessage: %s", triage.LanguageName(lang), text)
	if err := n.client.completeJSON(ctx, nluPrompt, user, &out); err != nil {
		return nil, fmt.Errorf("nlu: %w", err)
	}

	switch out.Intent {
	case triage.IntentSymptomQuery, triage.IntentGeneralHealth, triage.IntentEmergency, triage.IntentGreeting, triage.IntentOther:
	default:
		out.Intent = triage.IntentOther
	}
	if out.Intent == triage.IntentEmergency {
		out.IsEmergency = true
	}

	entities := out.Entities[:0]
	for _, e := range out.Entities {
		e.Text = strings.ToLower(strings.TrimSpace(e.Text))
		e.EntityType = strings.ToLower(strings.TrimSpace(e.EntityType))
		if e.Text != "" {
			entities = append(entities, e)
		}
	}
	out.Entities = entities

	if !out.IsEmergency && hasRedFlag(text) {
		out.IsEmergency = true
	}
	return &out, nil
}
