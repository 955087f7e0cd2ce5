package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"triage-assistant/internal/platform/logger"
)

func TestAssembleCapsAndCopies(t *testing.T) {
	a := NewContextAssembler(NopBackend{}, logger.Nop(), Options{})
	sess := NewSession(CanonicalLanguage)
	for i := 0; i < 25; i++ {
		sess.Symptoms.addSymptoms(fmt.Sprintf("s%d", i))
		sess.Symptoms.Answers = append(sess.Symptoms.Answers, FollowUpAnswer{Answer: fmt.Sprintf("a%d", i)})
	}
	sess.LastAdvice = strings.Repeat("é", 1000)
	sess.Profile = &UserProfile{Name: "Asha", Allergies: []string{"penicillin"}}
	sess.Memory[MemoryLastSymptoms] = "cough"

	sc := a.Assemble(context.Background(), sess)
	if len(sc.ExtractedSymptoms) != 20 || sc.ExtractedSymptoms[0] != "s0" {
		t.Errorf("symptoms = %v", sc.ExtractedSymptoms)
	}
	if len(sc.FollowUpAnswers) != 20 || sc.FollowUpAnswers[19].Answer != "a24" {
		t.Errorf("answers should keep the latest 20: first=%v", sc.FollowUpAnswers[0])
	}
	if n := len([]rune(sc.LastAdviceGiven)); n != 800 {
		t.Errorf("advice runes = %d", n)
	}
	if sc.PastMessages == nil || len(sc.PastMessages) != 0 {
		t.Errorf("PastMessages = %#v, want empty non-nil", sc.PastMessages)
	}

	sc.ExtractedSymptoms[0] = "mutated"
	sc.UserProfile.Allergies[0] = "mutated"
	sc.PersistentMemory[MemoryLastSymptoms] = "mutated"
	if sess.Symptoms.Extracted[0] != "s0" || sess.Profile.Allergies[0] != "penicillin" || sess.Memory[MemoryLastSymptoms] != "cough" {
		t.Error("snapshot aliases session state")
	}
}

func TestAssembleEmptySession(t *testing.T) {
	a := NewContextAssembler(NopBackend{}, logger.Nop(), Options{})
	sc := a.Assemble(context.Background(), NewSession(CanonicalLanguage))
	if sc.UserProfile != nil || sc.PersistentMemory != nil {
		t.Errorf("expected no profile and no memory: %+v", sc)
	}
}

func TestAssemblePastMessages(t *testing.T) {
	b := newFakeBackend()
	for i := 0; i < 12; i++ {
		b.recent = append(b.recent, Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
	}
	a := NewContextAssembler(b, logger.Nop(), Options{})
	sess := signedIn(b)

	sc := a.Assemble(context.Background(), sess)
	if len(sc.PastMessages) != 0 || b.recentCalls != 0 {
		t.Error("past messages fetched without a current conversation")
	}

	sess.ConversationID = uuid.New()
	sc = a.Assemble(context.Background(), sess)
	if len(sc.PastMessages) != 8 || sc.PastMessages[7].Content != "m11" {
		t.Errorf("PastMessages = %+v", sc.PastMessages)
	}

	b.recentErr = errors.New("db down")
	sc = a.Assemble(context.Background(), sess)
	if sc.PastMessages == nil || len(sc.PastMessages) != 0 {
		t.Errorf("backend failure should give empty list, got %#v", sc.PastMessages)
	}
}
