package agent

import (
	"context"
	"fmt"
	"strings"

	"triage-assistant/internal/triage"
)

const translatePrompt = "Translate the user's text into %s. Keep markdown, numbers and medical terms intact. Reply with the translation only."

// Translator localizes text with the chat model.
type Translator struct {
	client *Client
}

func NewTranslator(c *Client) *Translator {
	return &Translator{client: c}
}

func (t *Translator) Translate(ctx context.Context, text, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	out, err := t.client.complete(ctx, fmt.Sprintf(translatePrompt, triage.LanguageName(target)), text, 0)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return out, nil
}

func (t *Translator) TranslateToEnglish(ctx context.Context, text string) (string, error) {
	return t.Translate(ctx, text, triage.CanonicalLanguage)
}
