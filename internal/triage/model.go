package triage

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Lang      string    `json:"lang,omitempty"` // user messages only
	Timestamp time.Time `json:"timestamp"`
}

// CanonicalLanguage is the language the collaborators reason in.
const CanonicalLanguage = "en-IN"

var languageNames = map[string]string{
	"en-IN": "English",
	"hi-IN": "Hindi",
	"bn-IN": "Bengali",
	"mr-IN": "Marathi",
	"kn-IN": "Kannada",
	"ta-IN": "Tamil",
	"te-IN": "Telugu",
	"ml-IN": "Malayalam",
}

func SupportedLanguage(tag string) bool {
	_, ok := languageNames[tag]
	return ok
}

// LanguageName returns the English display name of a supported tag, or the
// tag itself.
func LanguageName(tag string) string {
	if n, ok := languageNames[tag]; ok {
		return n
	}
	return tag
}

// PrimarySubtag returns "hi" for "hi-IN".
func PrimarySubtag(tag string) string {
	if i := strings.IndexByte(tag, '-'); i >= 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}

type Intent string

const (
	IntentSymptomQuery  Intent = "symptom_query"
	IntentGeneralHealth Intent = "general_health_query"
	IntentEmergency     Intent = "emergency"
	IntentGreeting      Intent = "greeting"
	IntentOther         Intent = "other"
)

const EntitySymptom = "symptom"

type Entity struct {
	Text       string `json:"text"`
	EntityType string `json:"entity_type"`
}

type NLUResult struct {
	Intent      Intent   `json:"intent"`
	IsEmergency bool     `json:"is_emergency"`
	Entities    []Entity `json:"entities"`
}

// Symptoms returns the text of every symptom entity, in order.
func (r *NLUResult) Symptoms() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, e := range r.Entities {
		if e.EntityType == EntitySymptom && strings.TrimSpace(e.Text) != "" {
			out = append(out, strings.TrimSpace(e.Text))
		}
	}
	return out
}

type FollowUpQuestion struct {
	SymptomName string `json:"symptom_name"`
	Question    string `json:"question"`
}

type FollowUpAnswer struct {
	SymptomName string `json:"symptom_name"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
}

// Steps holds recommended next steps, which checkers report either as free
// text or as a list.
type Steps struct {
	Text  string
	Items []string
}

func (s Steps) MarshalJSON() ([]byte, error) {
	if len(s.Items) > 0 {
		return json.Marshal(s.Items)
	}
	return json.Marshal(s.Text)
}

func (s *Steps) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*s = Steps{Items: items}
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	*s = Steps{Text: text}
	return nil
}

type Assessment struct {
	Summary              string   `json:"assessment_summary"`
	SuggestedSeverity    string   `json:"suggested_severity"`
	RecommendedNextSteps Steps    `json:"recommended_next_steps"`
	PotentialWarnings    []string `json:"potential_warnings,omitempty"`
	KBTriagePoints       []string `json:"relevant_kb_triage_points,omitempty"`
	Disclaimer           string   `json:"disclaimer"`
}

type UserProfile struct {
	Name       string   `json:"name,omitempty"`
	Age        int      `json:"age,omitempty"`
	Gender     string   `json:"gender,omitempty"`
	HeightCm   float64  `json:"height_cm,omitempty"`
	WeightKg   float64  `json:"weight_kg,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
	Allergies  []string `json:"allergies,omitempty"`
	Pregnant   *bool    `json:"pregnancy_status,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

func (p *UserProfile) clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Conditions = append([]string(nil), p.Conditions...)
	c.Allergies = append([]string(nil), p.Allergies...)
	if p.Pregnant != nil {
		v := *p.Pregnant
		c.Pregnant = &v
	}
	return &c
}

// Cross-chat memory keys.
const (
	MemoryLastSymptoms = "last_symptoms"
	MemoryLastAdvice   = "last_advice"
)

type AuthSession struct {
	UserID       uuid.UUID `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
}

type ConversationSummary struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the per-user aggregate every orchestrator call operates on.
// Callers serialize access through Registry.Do.
type Session struct {
	ID           uuid.UUID
	Lang         string
	Conversation []Message
	Symptoms     SymptomSession
	Voice        VoiceCapture

	Profile        *UserProfile
	Memory         map[string]string
	LastAdvice     string
	LastAssessment *Assessment

	Auth           *AuthSession
	ConversationID uuid.UUID
	Conversations  []ConversationSummary

	CreatedAt time.Time

	mu        sync.Mutex
	seenTurns map[string]struct{}
	turnOrder []string
}

const maxRememberedTurns = 64

func NewSession(lang string) *Session {
	return &Session{
		ID:        uuid.New(),
		Lang:      lang,
		Memory:    map[string]string{},
		CreatedAt: time.Now(),
		seenTurns: map[string]struct{}{},
	}
}

func (s *Session) append(role Role, content, lang string) Message {
	m := Message{Role: role, Content: content, Timestamp: time.Now()}
	if role == RoleUser {
		m.Lang = PrimarySubtag(lang)
	}
	s.Conversation = append(s.Conversation, m)
	return m
}

func (s *Session) since(mark int) []Message {
	if mark >= len(s.Conversation) {
		return []Message{}
	}
	return append([]Message(nil), s.Conversation[mark:]...)
}

// markTurn records a caller-supplied turn id and reports whether it was
// already seen. Empty ids are never deduplicated.
func (s *Session) markTurn(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.seenTurns[id]; ok {
		return true
	}
	s.seenTurns[id] = struct{}{}
	s.turnOrder = append(s.turnOrder, id)
	if len(s.turnOrder) > maxRememberedTurns {
		delete(s.seenTurns, s.turnOrder[0])
		s.turnOrder = s.turnOrder[1:]
	}
	return false
}

func (s *Session) authenticated() bool {
	return s.Auth != nil && s.Auth.UserID != uuid.Nil
}

// SessionView is the read-only projection returned to clients.
type SessionView struct {
	ID                uuid.UUID         `json:"id"`
	Lang              string            `json:"lang"`
	Conversation      []Message         `json:"conversation"`
	VoiceStage        string            `json:"voice_stage"`
	SymptomState      string            `json:"symptom_state"`
	PendingQuestion   *FollowUpQuestion `json:"pending_question,omitempty"`
	ExtractedSymptoms []string          `json:"extracted_symptoms"`
	FollowUpAnswers   []FollowUpAnswer  `json:"follow_up_answers"`
	LastAdvice        string            `json:"last_advice_given,omitempty"`
	Profile           *UserProfile      `json:"user_profile,omitempty"`
	Authenticated     bool              `json:"authenticated"`
	ConversationID    *uuid.UUID        `json:"conversation_id,omitempty"`
}

func (s *Session) View() SessionView {
	v := SessionView{
		ID:                s.ID,
		Lang:              s.Lang,
		Conversation:      append([]Message{}, s.Conversation...),
		VoiceStage:        s.Voice.Stage().String(),
		SymptomState:      s.Symptoms.State().String(),
		ExtractedSymptoms: append([]string{}, s.Symptoms.Extracted...),
		FollowUpAnswers:   append([]FollowUpAnswer{}, s.Symptoms.Answers...),
		LastAdvice:        s.LastAdvice,
		Profile:           s.Profile.clone(),
		Authenticated:     s.authenticated(),
	}
	if q, ok := s.Symptoms.Pending(); ok {
		v.PendingQuestion = &q
	}
	if s.ConversationID != uuid.Nil {
		id := s.ConversationID
		v.ConversationID = &id
	}
	return v
}
