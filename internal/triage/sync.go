package triage

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"triage-assistant/internal/platform/logger"
)

// Syncer mirrors turns and health memory to the backend. Every method is a
// no-op when the backend is disabled or the session is anonymous, and no
// failure is ever returned to the caller.
type Syncer struct {
	backend Backend
	log     *logger.Logger
	opts    Options
}

func NewSyncer(b Backend, log *logger.Logger, opts Options) *Syncer {
	return &Syncer{backend: b, log: log, opts: opts.withDefaults()}
}

func (s *Syncer) active(sess *Session) bool {
	return s.backend.Enabled() && sess.authenticated()
}

// PersistMessage stores one message, creating the conversation record on
// first use.
func (s *Syncer) PersistMessage(ctx context.Context, sess *Session, role Role, content string) {
	if !s.active(sess) {
		return
	}
	defer s.swallowPanic("persist message", sess)

	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	if sess.ConversationID == uuid.Nil {
		conv, err := s.backend.CreateConversation(ctx, sess.Auth.UserID, conversationTitle(content, s.opts.TitlePrefixChars))
		if err != nil {
			s.log.Warn("create conversation failed", "session_id", sess.ID, "user_id", sess.Auth.UserID.String(), "error", err)
			return
		}
		sess.ConversationID = conv.ID
		if list, err := s.backend.ListConversations(ctx, sess.Auth.UserID); err == nil {
			sess.Conversations = list
		} else {
			sess.Conversations = append([]ConversationSummary{conv}, sess.Conversations...)
		}
	}

	if err := s.backend.InsertMessage(ctx, sess.ConversationID, role, content); err != nil {
		s.log.Warn("insert message failed", "session_id", sess.ID, "conversation_id", sess.ConversationID, "error", err)
	}
}

// SyncMemory upserts last_symptoms and last_advice, each only when the
// session has a value for it; stored keys are never blanked. The local cache
// is only updated once the backend accepted the write.
func (s *Syncer) SyncMemory(ctx context.Context, sess *Session) {
	if !s.active(sess) {
		return
	}
	defer s.swallowPanic("sync memory", sess)

	values := map[string]string{}
	if symptoms := head(sess.Symptoms.Extracted, s.opts.MemorySymptomCap); len(symptoms) > 0 {
		values[MemoryLastSymptoms] = strings.Join(symptoms, ", ")
	}
	if advice := strings.TrimSpace(sess.LastAdvice); advice != "" {
		values[MemoryLastAdvice] = truncate(advice, s.opts.MaxAdviceChars)
	}
	if len(values) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	if err := s.backend.UpsertMemory(ctx, sess.Auth.UserID, values); err != nil {
		s.log.Warn("memory upsert failed", "session_id", sess.ID, "error", err)
		return
	}
	if sess.Memory == nil {
		sess.Memory = map[string]string{}
	}
	for k, v := range values {
		sess.Memory[k] = v
	}
}

func (s *Syncer) swallowPanic(op string, sess *Session) {
	if r := recover(); r != nil {
		s.log.Error("backend call panicked", "op", op, "session_id", sess.ID, "panic", r)
	}
}
