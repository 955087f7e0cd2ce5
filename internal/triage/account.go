package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SetLanguage switches the session language. A real switch starts the user
// over: conversation, symptom interview, capture, advice and profile are
// all dropped.
func (s *Service) SetLanguage(sess *Session, lang string) error {
	if !SupportedLanguage(lang) {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	if lang == sess.Lang {
		return nil
	}
	sess.Lang = lang
	sess.Conversation = nil
	sess.Symptoms.reset()
	sess.Voice.reset()
	sess.LastAdvice = ""
	sess.LastAssessment = nil
	sess.Profile = nil
	return nil
}

// ClearSession empties the local conversation and health context. Backend
// records are left alone.
func (s *Service) ClearSession(sess *Session) {
	sess.Conversation = nil
	sess.Symptoms.reset()
	sess.Voice.reset()
	sess.LastAdvice = ""
	sess.LastAssessment = nil
	sess.Profile = nil
}

func (s *Service) SignIn(ctx context.Context, sess *Session, email, password string) error {
	return s.authenticate(ctx, sess, func(ctx context.Context) (*AuthSession, error) {
		return s.backend.SignIn(ctx, strings.TrimSpace(email), password)
	})
}

func (s *Service) SignUp(ctx context.Context, sess *Session, email, password string) error {
	return s.authenticate(ctx, sess, func(ctx context.Context) (*AuthSession, error) {
		return s.backend.SignUp(ctx, strings.TrimSpace(email), password)
	})
}

// Resume re-establishes a session from previously issued tokens.
func (s *Service) Resume(ctx context.Context, sess *Session, accessToken, refreshToken string) error {
	return s.authenticate(ctx, sess, func(ctx context.Context) (*AuthSession, error) {
		return s.backend.Resume(ctx, accessToken, refreshToken)
	})
}

func (s *Service) authenticate(ctx context.Context, sess *Session, fn func(context.Context) (*AuthSession, error)) error {
	if !s.backend.Enabled() {
		return ErrBackendUnavailable
	}
	auth, err := fn(ctx)
	if err != nil {
		return err
	}
	if auth == nil || auth.UserID == uuid.Nil {
		return ErrUnauthenticated
	}
	sess.Auth = auth
	sess.ConversationID = uuid.Nil
	s.hydrate(ctx, sess)
	s.log.Info("signed in", "session_id", sess.ID, "user_id", auth.UserID.String())
	return nil
}

// hydrate pulls the conversation list, memory and profile. Each piece is
// optional; failures leave the local value untouched.
func (s *Service) hydrate(ctx context.Context, sess *Session) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	uid := sess.Auth.UserID

	if list, err := s.backend.ListConversations(ctx, uid); err != nil {
		s.log.Warn("hydrate conversations failed", "session_id", sess.ID, "error", err)
	} else {
		sess.Conversations = list
	}
	if mem, err := s.backend.GetAllMemory(ctx, uid); err != nil {
		s.log.Warn("hydrate memory failed", "session_id", sess.ID, "error", err)
	} else if mem != nil {
		sess.Memory = mem
	}
	if p, err := s.backend.GetProfile(ctx, uid); err != nil {
		s.log.Warn("hydrate profile failed", "session_id", sess.ID, "error", err)
	} else if p != nil {
		sess.Profile = p
	}
}

// SignOut forgets the user. The local conversation stays on screen but is
// no longer mirrored.
func (s *Service) SignOut(sess *Session) {
	sess.Auth = nil
	sess.ConversationID = uuid.Nil
	sess.Conversations = nil
	sess.Memory = map[string]string{}
	sess.Profile = nil
}

func (s *Service) ListConversations(ctx context.Context, sess *Session) ([]ConversationSummary, error) {
	if !sess.authenticated() {
		return nil, ErrUnauthenticated
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	list, err := s.backend.ListConversations(ctx, sess.Auth.UserID)
	if err != nil {
		s.log.Warn("list conversations failed", "session_id", sess.ID, "error", err)
		return append([]ConversationSummary{}, sess.Conversations...), nil
	}
	sess.Conversations = list
	return append([]ConversationSummary{}, list...), nil
}

// OpenConversation replaces the local log with a stored conversation. Any
// interview or capture in progress belongs to the previous conversation and
// is dropped.
func (s *Service) OpenConversation(ctx context.Context, sess *Session, id uuid.UUID) error {
	if !sess.authenticated() {
		return ErrUnauthenticated
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	msgs, err := s.backend.ListMessages(ctx, sess.Auth.UserID, id)
	if err != nil {
		return fmt.Errorf("open conversation %s: %w", id, err)
	}
	sess.Conversation = append([]Message{}, msgs...)
	sess.ConversationID = id
	sess.Symptoms.close()
	sess.Voice.reset()
	return nil
}

// NewConversation starts a fresh log. The backend record is created lazily
// with the first persisted message.
func (s *Service) NewConversation(sess *Session) {
	sess.Conversation = nil
	sess.ConversationID = uuid.Nil
	sess.Symptoms.reset()
	sess.Voice.reset()
	sess.LastAssessment = nil
}

// SaveProfile updates the cached profile and mirrors it when signed in.
func (s *Service) SaveProfile(ctx context.Context, sess *Session, p UserProfile) {
	sess.Profile = p.clone()
	if !s.backend.Enabled() || !sess.authenticated() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	if err := s.backend.UpsertProfile(ctx, sess.Auth.UserID, p); err != nil {
		s.log.Warn("profile upsert failed", "session_id", sess.ID, "error", err)
	}
}

// Speak synthesizes text, or the latest assistant message when text is
// empty, in the session language.
func (s *Service) Speak(ctx context.Context, sess *Session, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		for i := len(sess.Conversation) - 1; i >= 0; i-- {
			if sess.Conversation[i].Role == RoleAssistant {
				text = sess.Conversation[i].Content
				break
			}
		}
	}
	text = StripMarkdown(text)
	if text == "" {
		return nil, ErrNothingToSpeak
	}
	return s.synthesizer.Synthesize(ctx, text, sess.Lang)
}

// Assessment returns the most recent assessment of the session.
func (s *Service) Assessment(sess *Session) (Assessment, error) {
	if sess.LastAssessment == nil {
		return Assessment{}, ErrNoAssessment
	}
	return *sess.LastAssessment, nil
}
