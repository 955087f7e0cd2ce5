package triage

import (
	"context"

	"github.com/google/uuid"

	"triage-assistant/internal/platform/logger"
)

// SessionContext is the immutable snapshot handed to response generation.
type SessionContext struct {
	ExtractedSymptoms []string          `json:"extracted_symptoms"`
	FollowUpAnswers   []FollowUpAnswer  `json:"follow_up_answers"`
	LastAdviceGiven   string            `json:"last_advice_given"`
	UserProfile       *UserProfile      `json:"user_profile,omitempty"`
	PersistentMemory  map[string]string `json:"persistent_memory,omitempty"`
	PastMessages      []Message         `json:"past_messages"`
}

type ContextAssembler struct {
	backend Backend
	log     *logger.Logger
	opts    Options
}

func NewContextAssembler(b Backend, log *logger.Logger, opts Options) *ContextAssembler {
	return &ContextAssembler{backend: b, log: log, opts: opts.withDefaults()}
}

// Assemble never fails: an unavailable backend yields an empty PastMessages.
func (a *ContextAssembler) Assemble(ctx context.Context, sess *Session) SessionContext {
	sc := SessionContext{
		ExtractedSymptoms: head(sess.Symptoms.Extracted, a.opts.MaxSymptoms),
		FollowUpAnswers:   tail(sess.Symptoms.Answers, a.opts.MaxAnswers),
		LastAdviceGiven:   truncate(sess.LastAdvice, a.opts.MaxAdviceChars),
		UserProfile:       sess.Profile.clone(),
		PastMessages:      []Message{},
	}
	if len(sess.Memory) > 0 {
		sc.PersistentMemory = make(map[string]string, len(sess.Memory))
		for k, v := range sess.Memory {
			sc.PersistentMemory[k] = v
		}
	}

	if !a.backend.Enabled() || !sess.authenticated() || sess.ConversationID == uuid.Nil {
		return sc
	}
	cctx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()
	past, err := a.backend.RecentMessagesFromOtherConversations(cctx, sess.Auth.UserID, sess.ConversationID, a.opts.MaxPastMessages)
	if err != nil {
		a.log.Warn("past messages unavailable", "session_id", sess.ID, "error", err)
		return sc
	}
	if len(past) > a.opts.MaxPastMessages {
		past = past[len(past)-a.opts.MaxPastMessages:]
	}
	sc.PastMessages = append(sc.PastMessages, past...)
	return sc
}

func head[T any](in []T, n int) []T {
	if len(in) > n {
		in = in[:n]
	}
	return append([]T{}, in...)
}

func tail[T any](in []T, n int) []T {
	if len(in) > n {
		in = in[len(in)-n:]
	}
	return append([]T{}, in...)
}
