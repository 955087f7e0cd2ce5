package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"triage-assistant/internal/platform/logger"
)

func signedIn(b *fakeBackend) *Session {
	sess := NewSession(CanonicalLanguage)
	sess.Auth = b.auth()
	return sess
}

func TestPersistFailureKeepsLocalConversation(t *testing.T) {
	b := newFakeBackend()
	b.insertErr = errors.New("connection reset")
	h := newHarness(t, b)
	sess := signedIn(b)

	res, err := h.svc.SubmitText(context.Background(), sess, "is coffee bad for me", "")
	if err != nil {
		t.Fatalf("persistence failure surfaced: %v", err)
	}
	if len(sess.Conversation) != 2 || sess.Conversation[0].Content != "is coffee bad for me" {
		t.Errorf("conversation = %+v", sess.Conversation)
	}
	if countRole(res.Messages, RoleSystem) != 0 {
		t.Error("persistence failure produced a user-visible message")
	}
}

func TestPersistPanicIsContained(t *testing.T) {
	b := newFakeBackend()
	b.panicOnInsert = true
	h := newHarness(t, b)
	sess := signedIn(b)

	res, err := h.svc.SubmitText(context.Background(), sess, "hello", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Messages) != 2 || countRole(res.Messages, RoleSystem) != 0 {
		t.Errorf("messages = %+v", res.Messages)
	}
}

func TestConversationCreatedLazilyOnce(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b)
	sess := signedIn(b)
	ctx := context.Background()

	long := strings.Repeat("ache ", 20)
	if _, err := h.svc.SubmitText(ctx, sess, long, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.SubmitText(ctx, sess, "second", ""); err != nil {
		t.Fatal(err)
	}

	if len(b.conversations) != 1 {
		t.Fatalf("created %d conversations", len(b.conversations))
	}
	title := b.conversations[0].Title
	if !strings.HasSuffix(title, "…") || len([]rune(title)) != 51 {
		t.Errorf("title = %q", title)
	}
	if sess.ConversationID != b.conversations[0].ID {
		t.Error("session not bound to the created conversation")
	}
	if len(sess.Conversations) != 1 {
		t.Errorf("conversation list not refreshed: %+v", sess.Conversations)
	}
	if len(b.messages) != 4 {
		t.Errorf("stored %d messages, want 4", len(b.messages))
	}
	for _, m := range b.messages {
		if m.Conversation != sess.ConversationID {
			t.Errorf("message stored under %s", m.Conversation)
		}
	}
}

func TestAnonymousSessionIsNotMirrored(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b)
	sess := NewSession(CanonicalLanguage)

	if _, err := h.svc.SubmitText(context.Background(), sess, "hello", ""); err != nil {
		t.Fatal(err)
	}
	if len(b.conversations) != 0 || len(b.messages) != 0 || len(b.upserts) != 0 {
		t.Errorf("anonymous session touched backend: %d convs %d msgs %d upserts",
			len(b.conversations), len(b.messages), len(b.upserts))
	}
}

func TestSyncMemory(t *testing.T) {
	b := newFakeBackend()
	s := NewSyncer(b, logger.Nop(), Options{})
	sess := signedIn(b)
	sess.Symptoms.addSymptoms("fever", "headache")
	sess.LastAdvice = strings.Repeat("x", 900)

	s.SyncMemory(context.Background(), sess)
	if len(b.upserts) != 1 {
		t.Fatalf("upserts = %d", len(b.upserts))
	}
	if got := sess.Memory[MemoryLastSymptoms]; got != "fever, headache" {
		t.Errorf("last_symptoms = %q", got)
	}
	if got := len(sess.Memory[MemoryLastAdvice]); got != 800 {
		t.Errorf("last_advice length = %d", got)
	}

	b.upsertErr = errors.New("timeout")
	sess.Symptoms.addSymptoms("cough")
	s.SyncMemory(context.Background(), sess)
	if got := sess.Memory[MemoryLastSymptoms]; got != "fever, headache" {
		t.Errorf("local memory changed after failed upsert: %q", got)
	}
}

func TestSyncMemorySkipsBlankKeys(t *testing.T) {
	b := newFakeBackend()
	s := NewSyncer(b, logger.Nop(), Options{})
	sess := signedIn(b)

	s.SyncMemory(context.Background(), sess)
	if len(b.upserts) != 0 {
		t.Fatalf("empty health context written: %v", b.upserts)
	}

	sess.LastAdvice = "Rest and drink fluids."
	s.SyncMemory(context.Background(), sess)
	if len(b.upserts) != 1 {
		t.Fatalf("upserts = %d", len(b.upserts))
	}
	if _, ok := b.upserts[0][MemoryLastSymptoms]; ok {
		t.Errorf("blank last_symptoms written: %v", b.upserts[0])
	}
	if got := b.upserts[0][MemoryLastAdvice]; got != "Rest and drink fluids." {
		t.Errorf("last_advice = %q", got)
	}
}

func TestGreetingKeepsStoredSymptoms(t *testing.T) {
	b := newFakeBackend()
	b.memory = map[string]string{MemoryLastSymptoms: "fever, headache"}
	h := newHarness(t, b)
	sess := NewSession(CanonicalLanguage)
	ctx := context.Background()

	if err := h.svc.SignIn(ctx, sess, "meera@example.com", "secret"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.SubmitText(ctx, sess, "hello there", ""); err != nil {
		t.Fatal(err)
	}

	if got := b.memory[MemoryLastSymptoms]; got != "fever, headache" {
		t.Errorf("stored last_symptoms = %q", got)
	}
	if got := sess.Memory[MemoryLastSymptoms]; got != "fever, headache" {
		t.Errorf("session last_symptoms = %q", got)
	}
	if got := b.memory[MemoryLastAdvice]; got != "Stay hydrated." {
		t.Errorf("stored last_advice = %q", got)
	}
}

func TestCreateConversationFailureSkipsInsert(t *testing.T) {
	b := newFakeBackend()
	b.createErr = errors.New("db down")
	s := NewSyncer(b, logger.Nop(), Options{})
	sess := signedIn(b)

	s.PersistMessage(context.Background(), sess, RoleUser, "hello")
	if sess.ConversationID != uuid.Nil {
		t.Error("conversation id set despite failure")
	}
	if len(b.messages) != 0 {
		t.Errorf("messages = %+v", b.messages)
	}
}
