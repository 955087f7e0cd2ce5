package triage

import (
	"context"

	"github.com/google/uuid"
)

// Collaborator contracts consumed by the orchestrator. Implementations are
// process-wide and hold no per-session state.

type NLU interface {
	Process(ctx context.Context, text, lang string) (*NLUResult, error)
}

// SymptomChecker drives one follow-up interview. NextQuestion returns nil
// once the checker has nothing left to ask.
type SymptomChecker interface {
	PrepareFollowUpQuestions(ctx context.Context) error
	NextQuestion(ctx context.Context) (*FollowUpQuestion, error)
	RecordAnswer(ctx context.Context, symptom, question, answer string) error
	Assess(ctx context.Context) (*Assessment, error)
	CollectedSymptoms() []string
}

type CheckerFactory interface {
	NewChecker(ctx context.Context, nlu *NLUResult) (SymptomChecker, error)
}

type ResponseGenerator interface {
	GenerateResponse(ctx context.Context, text string, nlu *NLUResult, sc SessionContext) (string, error)
}

type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
	TranslateToEnglish(ctx context.Context, text string) (string, error)
}

type Transcription struct {
	Text             string `json:"transcription"`
	LanguageDetected string `json:"language_detected"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, lang string) (*Transcription, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
}

type AudioDecoder interface {
	Decode(raw []byte) (samples []float32, sampleRate int, err error)
}

type AudioCleaner interface {
	Clean(samples []float32, sampleRate int) ([]float32, int, error)
}

// AssessmentSink receives a finished assessment out of band (doctor
// notification, report rendering). Failures never reach the user.
type AssessmentSink interface {
	Deliver(ctx context.Context, sessionID uuid.UUID, a Assessment, lang string) error
}

// Backend is the optional persistence layer. Enabled reports false for the
// null implementation, in which case the orchestrator runs session-only.
type Backend interface {
	Enabled() bool

	SignIn(ctx context.Context, email, password string) (*AuthSession, error)
	SignUp(ctx context.Context, email, password string) (*AuthSession, error)
	Resume(ctx context.Context, accessToken, refreshToken string) (*AuthSession, error)

	CreateConversation(ctx context.Context, userID uuid.UUID, title string) (ConversationSummary, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error)
	ListMessages(ctx context.Context, userID, conversationID uuid.UUID) ([]Message, error)
	InsertMessage(ctx context.Context, conversationID uuid.UUID, role Role, content string) error
	RecentMessagesFromOtherConversations(ctx context.Context, userID, exclude uuid.UUID, limit int) ([]Message, error)

	GetAllMemory(ctx context.Context, userID uuid.UUID) (map[string]string, error)
	UpsertMemory(ctx context.Context, userID uuid.UUID, values map[string]string) error

	GetProfile(ctx context.Context, userID uuid.UUID) (*UserProfile, error)
	UpsertProfile(ctx context.Context, userID uuid.UUID, p UserProfile) error
}
