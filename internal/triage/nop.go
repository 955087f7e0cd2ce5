package triage

import (
	"context"

	"github.com/google/uuid"
)

// NopBackend is selected when no database is configured. Every persistence
// call degrades to session-only operation.
type NopBackend struct{}

func (NopBackend) Enabled() bool { return false }

func (NopBackend) SignIn(context.Context, string, string) (*AuthSession, error) {
	return nil, ErrBackendUnavailable
}
func (NopBackend) SignUp(context.Context, string, string) (*AuthSession, error) {
	return nil, ErrBackendUnavailable
}
func (NopBackend) Resume(context.Context, string, string) (*AuthSession, error) {
	return nil, ErrBackendUnavailable
}

func (NopBackend) CreateConversation(context.Context, uuid.UUID, string) (ConversationSummary, error) {
	return ConversationSummary{}, ErrBackendUnavailable
}
func (NopBackend) ListConversations(context.Context, uuid.UUID) ([]ConversationSummary, error) {
	return nil, nil
}
func (NopBackend) ListMessages(context.Context, uuid.UUID, uuid.UUID) ([]Message, error) {
	return nil, nil
}
func (NopBackend) InsertMessage(context.Context, uuid.UUID, Role, string) error { return nil }
func (NopBackend) RecentMessagesFromOtherConversations(context.Context, uuid.UUID, uuid.UUID, int) ([]Message, error) {
	return nil, nil
}

func (NopBackend) GetAllMemory(context.Context, uuid.UUID) (map[string]string, error) {
	return nil, nil
}
func (NopBackend) UpsertMemory(context.Context, uuid.UUID, map[string]string) error { return nil }

func (NopBackend) GetProfile(context.Context, uuid.UUID) (*UserProfile, error) { return nil, nil }
func (NopBackend) UpsertProfile(context.Context, uuid.UUID, UserProfile) error  { return nil }

// PassthroughCleaner returns the input unchanged.
type PassthroughCleaner struct{}

func (PassthroughCleaner) Clean(samples []float32, sampleRate int) ([]float32, int, error) {
	return samples, sampleRate, nil
}

type nopSynthesizer struct{}

func (nopSynthesizer) Synthesize(context.Context, string, string) ([]byte, error) {
	return nil, ErrBackendUnavailable
}

type nopSink struct{}

func (nopSink) Deliver(context.Context, uuid.UUID, Assessment, string) error { return nil }
