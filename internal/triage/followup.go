package triage

import (
	"context"
	"errors"
	"fmt"
)

func (s *Service) startFollowUp(ctx context.Context, sess *Session, nlu *NLUResult) error {
	checker, err := s.checkers.NewChecker(ctx, nlu)
	if err != nil {
		return fmt.Errorf("new checker: %w", err)
	}
	sess.Symptoms.begin(checker)
	if err := checker.PrepareFollowUpQuestions(ctx); err != nil {
		return fmt.Errorf("prepare questions: %w", err)
	}
	return s.advance(ctx, sess)
}

func (s *Service) answerFollowUp(ctx context.Context, sess *Session, text string) error {
	s.appendAndPersist(ctx, sess, RoleUser, text)

	a, ok := sess.Symptoms.answered(text)
	if !ok {
		return errors.New("follow-up answer without pending question")
	}
	if err := sess.Symptoms.checker.RecordAnswer(ctx, a.SymptomName, a.Question, a.Answer); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return s.advance(ctx, sess)
}

// advance asks the checker for its next question. The loop length is the
// checker's alone; when it runs dry the interview is assessed.
func (s *Service) advance(ctx context.Context, sess *Session) error {
	checker := sess.Symptoms.checker
	if checker == nil {
		return errors.New("symptom session has no checker")
	}
	q, err := checker.NextQuestion(ctx)
	if err != nil {
		return fmt.Errorf("next question: %w", err)
	}
	if q == nil {
		return s.assess(ctx, sess)
	}

	symptom, err := s.localize(ctx, q.SymptomName, sess.Lang)
	if err != nil {
		return err
	}
	question, err := s.localize(ctx, q.Question, sess.Lang)
	if err != nil {
		return err
	}

	sess.Symptoms.await(*q)
	content := question
	if symptom != "" {
		content = symptom + ": " + question
	}
	s.appendAndPersist(ctx, sess, RoleAssistant, content)
	return nil
}
