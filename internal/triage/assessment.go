package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxFallbackPersisted = 2000
	maxRawErrorPersisted = 500
	sinkTimeout          = 30 * time.Second
)

func (s *Service) assess(ctx context.Context, sess *Session) error {
	checker := sess.Symptoms.checker
	sess.Symptoms.assessing()

	// 1. Compute
	a, err := checker.Assess(ctx)
	if err != nil {
		return fmt.Errorf("assessment: %w", err)
	}
	if a == nil {
		return errors.New("assessment: empty result")
	}
	sess.Symptoms.addSymptoms(checker.CollectedSymptoms()...)
	kept := *a
	sess.LastAssessment = &kept

	// 2. Render, falling back to the raw payload
	content, persisted := "", ""
	rendered, err := s.renderAssessment(ctx, *a, sess.Lang)
	if err == nil {
		content, persisted = rendered, rendered
	} else {
		s.log.Warn("assessment render failed", "session_id", sess.ID, "error", err)
		content, persisted = rawAssessment(*a)
	}
	sess.append(RoleAssistant, content, sess.Lang)
	s.sync.PersistMessage(ctx, sess, RoleAssistant, persisted)

	// 3. Health context
	if strings.TrimSpace(a.Summary) != "" {
		sess.LastAdvice = truncate(a.Summary, s.opts.MaxAdviceChars)
	} else {
		sess.LastAdvice = truncate(content, s.opts.MaxAdviceChars)
	}
	s.sync.SyncMemory(ctx, sess)
	sess.Symptoms.close()

	// 4. Out-of-band delivery
	go func(id uuid.UUID, lang string, a Assessment) {
		dctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		if err := s.sink.Deliver(dctx, id, a, lang); err != nil {
			s.log.Warn("assessment delivery failed", "session_id", id, "error", err)
		}
	}(sess.ID, sess.Lang, kept)
	return nil
}

// renderAssessment builds the localized markdown message.
func (s *Service) renderAssessment(ctx context.Context, a Assessment, lang string) (string, error) {
	tr := func(text string) (string, error) { return s.localize(ctx, text, lang) }
	var b strings.Builder

	section := func(title string) error {
		t, err := tr(title)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "\n**%s:**\n", t)
		return nil
	}
	bullets := func(items []string) error {
		for _, it := range items {
			if strings.TrimSpace(it) == "" {
				continue
			}
			t, err := tr(it)
			if err != nil {
				return err
			}
			fmt.Fprintf(&b, "- %s\n", t)
		}
		return nil
	}

	title, err := tr("Preliminary Health Assessment")
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "### %s\n", title)

	if err := section("Summary"); err != nil {
		return "", err
	}
	summary, err := tr(a.Summary)
	if err != nil {
		return "", err
	}
	b.WriteString(summary + "\n")

	if err := section("Suggested Severity"); err != nil {
		return "", err
	}
	severity, err := tr(a.SuggestedSeverity)
	if err != nil {
		return "", err
	}
	b.WriteString(severity + "\n")

	if err := section("Recommended Next Steps"); err != nil {
		return "", err
	}
	steps := a.RecommendedNextSteps.Items
	if len(steps) == 0 {
		steps = splitSentences(a.RecommendedNextSteps.Text)
	}
	if err := bullets(steps); err != nil {
		return "", err
	}

	if len(a.PotentialWarnings) > 0 {
		if err := section("Potential Warnings"); err != nil {
			return "", err
		}
		if err := bullets(a.PotentialWarnings); err != nil {
			return "", err
		}
	}
	if len(a.KBTriagePoints) > 0 {
		if err := section("Relevant Triage Points from Knowledge Base"); err != nil {
			return "", err
		}
		if err := bullets(a.KBTriagePoints); err != nil {
			return "", err
		}
	}

	disclaimer := strings.TrimSpace(a.Disclaimer)
	if disclaimer == "" {
		disclaimer = MsgDefaultDisclaimer
	}
	if err := section("Disclaimer"); err != nil {
		return "", err
	}
	d, err := tr(disclaimer)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "_%s_", d)
	return b.String(), nil
}

// rawAssessment is the best-effort message used when rendering fails. It
// returns the displayed content and the shorter persisted copy.
func rawAssessment(a Assessment) (string, string) {
	raw, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		msg := fmt.Sprintf("%s: %v", MsgAssessmentRawFailed, err)
		return msg, truncate(msg, maxRawErrorPersisted)
	}
	msg := MsgAssessmentFallback + "\n```json\n" + string(raw) + "\n```"
	return msg, truncate(msg, maxFallbackPersisted)
}
