package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SubmitText routes one typed utterance. turnID, when non-empty, makes the
// call idempotent: a repeated id appends nothing.
func (s *Service) SubmitText(ctx context.Context, sess *Session, text, turnID string) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, ErrEmptyUtterance
	}
	if sess.markTurn(turnID) {
		return TurnResult{Path: PathDuplicate, Messages: []Message{}}, nil
	}
	// A capture left mid-flight by an interrupted request is abandoned.
	if sess.Voice.Stage() != VoiceIdle {
		s.log.Info("abandoning voice capture", "session_id", sess.ID, "stage", sess.Voice.Stage().String())
		sess.Voice.reset()
	}

	mark := len(sess.Conversation)
	path := s.route(ctx, sess, text)
	return TurnResult{Path: path, Messages: sess.since(mark)}, nil
}

// route appends exactly one user message for text and whatever the chosen
// branch produces. Failures are converted into a single system message.
func (s *Service) route(ctx context.Context, sess *Session, text string) (path RoutePath) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(sess, fmt.Errorf("panic: %v", r))
		}
		sess.Voice.reset()
	}()

	// 1. Pending question: the utterance answers it
	if _, ok := sess.Symptoms.Pending(); ok {
		path = PathFollowUp
		if err := s.answerFollowUp(ctx, sess, text); err != nil {
			s.fail(sess, err)
		}
		return path
	}

	// 2. New query
	path = PathNewQuery
	s.appendAndPersist(ctx, sess, RoleUser, text)
	if sess.Symptoms.Active() {
		s.log.Debug("clearing stale symptom session", "session_id", sess.ID, "state", sess.Symptoms.State().String())
		sess.Symptoms.close()
	}
	if err := s.respond(ctx, sess, text); err != nil {
		s.fail(sess, err)
	}
	return path
}

func (s *Service) respond(ctx context.Context, sess *Session, text string) error {
	nlu, err := s.nlu.Process(ctx, text, sess.Lang)
	if err != nil {
		return fmt.Errorf("nlu: %w", err)
	}
	if nlu == nil {
		return errors.New("nlu: empty result")
	}
	sess.Symptoms.addSymptoms(nlu.Symptoms()...)

	if nlu.Intent == IntentSymptomQuery && !nlu.IsEmergency {
		return s.startFollowUp(ctx, sess, nlu)
	}
	return s.directResponse(ctx, sess, text, nlu)
}

func (s *Service) directResponse(ctx context.Context, sess *Session, text string, nlu *NLUResult) error {
	// 1. Snapshot context
	sc := s.ctxb.Assemble(ctx, sess)

	// 2. Generate in the canonical language
	reply, err := s.responder.GenerateResponse(ctx, text, nlu, sc)
	if err != nil {
		return fmt.Errorf("generate response: %w", err)
	}
	reply = CleanAssistantText(reply)
	if reply == "" {
		return errors.New("generate response: empty reply")
	}

	// 3. Localize and record
	localized, err := s.localize(ctx, reply, sess.Lang)
	if err != nil {
		return err
	}
	s.appendAndPersist(ctx, sess, RoleAssistant, localized)

	// 4. Health context
	sess.LastAdvice = truncate(reply, s.opts.MaxAdviceChars)
	sess.Symptoms.close()
	s.sync.SyncMemory(ctx, sess)
	return nil
}

// fail records a caught failure and leaves the session ready to route the
// next utterance as a new query.
func (s *Service) fail(sess *Session, err error) {
	s.log.Error("turn failed", "session_id", sess.ID, "symptom_state", sess.Symptoms.State().String(), "error", err)
	sess.append(RoleSystem, MsgProcessingError, "")
	sess.Symptoms.close()
	sess.Voice.reset()
}

func (s *Service) appendAndPersist(ctx context.Context, sess *Session, role Role, content string) {
	sess.append(role, content, sess.Lang)
	s.sync.PersistMessage(ctx, sess, role, content)
}

// localize translates canonical-language text into lang.
func (s *Service) localize(ctx context.Context, text, lang string) (string, error) {
	if text == "" || lang == CanonicalLanguage {
		return text, nil
	}
	out, err := s.translator.Translate(ctx, text, lang)
	if err != nil {
		return "", fmt.Errorf("translate to %s: %w", lang, err)
	}
	if strings.TrimSpace(out) == "" {
		return text, nil
	}
	return out, nil
}
