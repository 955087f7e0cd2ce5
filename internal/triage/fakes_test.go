package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

type fakeNLU struct {
	results map[string]*NLUResult
	err     error
	calls   int
}

func (f *fakeNLU) Process(_ context.Context, text, _ string) (*NLUResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[text]; ok {
		return r, nil
	}
	return &NLUResult{Intent: IntentOther}, nil
}

func symptomQuery(symptoms ...string) *NLUResult {
	r := &NLUResult{Intent: IntentSymptomQuery}
	for _, s := range symptoms {
		r.Entities = append(r.Entities, Entity{Text: s, EntityType: EntitySymptom})
	}
	return r
}

type scriptedChecker struct {
	questions  []FollowUpQuestion
	next       int
	recorded   []FollowUpAnswer
	assessment *Assessment
	assessErr  error
	nextErr    error
	collected  []string
	prepared   bool
	assessed   int
	panicOnAsk bool
}

func (c *scriptedChecker) PrepareFollowUpQuestions(context.Context) error {
	c.prepared = true
	return nil
}

func (c *scriptedChecker) NextQuestion(context.Context) (*FollowUpQuestion, error) {
	if c.panicOnAsk {
		panic("checker exploded")
	}
	if c.nextErr != nil {
		return nil, c.nextErr
	}
	if c.next >= len(c.questions) {
		return nil, nil
	}
	q := c.questions[c.next]
	c.next++
	return &q, nil
}

func (c *scriptedChecker) RecordAnswer(_ context.Context, symptom, question, answer string) error {
	c.recorded = append(c.recorded, FollowUpAnswer{SymptomName: symptom, Question: question, Answer: answer})
	return nil
}

func (c *scriptedChecker) Assess(context.Context) (*Assessment, error) {
	c.assessed++
	if c.assessErr != nil {
		return nil, c.assessErr
	}
	if c.assessment != nil {
		return c.assessment, nil
	}
	return &Assessment{
		Summary:              "Likely a viral infection.",
		SuggestedSeverity:    "mild",
		RecommendedNextSteps: Steps{Text: "Rest well. Drink fluids! See a doctor if it persists."},
		Disclaimer:           "",
	}, nil
}

func (c *scriptedChecker) CollectedSymptoms() []string { return c.collected }

type fakeCheckers struct {
	build   func() *scriptedChecker
	created []*scriptedChecker
	err     error
}

func (f *fakeCheckers) NewChecker(context.Context, *NLUResult) (SymptomChecker, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := &scriptedChecker{}
	if f.build != nil {
		c = f.build()
	}
	f.created = append(f.created, c)
	return c, nil
}

func (f *fakeCheckers) last() *scriptedChecker {
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

type fakeResponder struct {
	reply   string
	err     error
	panics  bool
	lastCtx SessionContext
	calls   int
}

func (f *fakeResponder) GenerateResponse(_ context.Context, _ string, _ *NLUResult, sc SessionContext) (string, error) {
	f.calls++
	f.lastCtx = sc
	if f.panics {
		panic("responder exploded")
	}
	if f.err != nil {
		return "", f.err
	}
	if f.reply == "" {
		return "Stay hydrated.", nil
	}
	return f.reply, nil
}

// fakeTranslator tags text with the target so tests can see what was
// translated.
type fakeTranslator struct {
	failOn     string
	toEnglish  int
	translated int
}

func (f *fakeTranslator) Translate(_ context.Context, text, target string) (string, error) {
	f.translated++
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return "", errors.New("translator down")
	}
	return "[" + target + "] " + text, nil
}

func (f *fakeTranslator) TranslateToEnglish(_ context.Context, text string) (string, error) {
	f.toEnglish++
	return "[en] " + text, nil
}

type fakeTranscriber struct {
	result   *Transcription
	err      error
	lastLang string
	lastRate int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []float32, rate int, lang string) (*Transcription, error) {
	f.lastLang = lang
	f.lastRate = rate
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeDecoder struct {
	err error
}

func (f *fakeDecoder) Decode(raw []byte) ([]float32, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	out := make([]float32, len(raw))
	for i, b := range raw {
		out[i] = float32(b) / 255
	}
	return out, 48000, nil
}

type resamplingCleaner struct{}

func (resamplingCleaner) Clean(samples []float32, rate int) ([]float32, int, error) {
	return samples, rate / 3, nil
}

type fakeSynth struct {
	lastText string
	lastLang string
}

func (f *fakeSynth) Synthesize(_ context.Context, text, lang string) ([]byte, error) {
	f.lastText = text
	f.lastLang = lang
	return []byte("mp3:" + text), nil
}

type fakeSink struct {
	got chan Assessment
}

func (f *fakeSink) Deliver(_ context.Context, _ uuid.UUID, a Assessment, _ string) error {
	f.got <- a
	return nil
}

type storedMessage struct {
	Conversation uuid.UUID
	Role         Role
	Content      string
}

// fakeBackend records every call. insertErr and upsertErr simulate a
// failing store; panicOnInsert simulates a misbehaving driver.
type fakeBackend struct {
	mu sync.Mutex

	userID        uuid.UUID
	conversations []ConversationSummary
	messages      []storedMessage
	stored        map[uuid.UUID][]Message
	memory        map[string]string
	profile       *UserProfile
	recent        []Message
	recentErr     error
	insertErr     error
	upsertErr     error
	createErr     error
	panicOnInsert bool
	recentCalls   int
	upserts       []map[string]string
	profiles      []UserProfile
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{userID: uuid.New(), stored: map[uuid.UUID][]Message{}}
}

func (f *fakeBackend) Enabled() bool { return true }

func (f *fakeBackend) auth() *AuthSession {
	return &AuthSession{UserID: f.userID, AccessToken: "access", RefreshToken: "refresh"}
}

func (f *fakeBackend) SignIn(_ context.Context, email, password string) (*AuthSession, error) {
	if password != "secret" {
		return nil, ErrUnauthenticated
	}
	return f.auth(), nil
}

func (f *fakeBackend) SignUp(context.Context, string, string) (*AuthSession, error) {
	return f.auth(), nil
}

func (f *fakeBackend) Resume(_ context.Context, access, _ string) (*AuthSession, error) {
	if access != "access" {
		return nil, ErrUnauthenticated
	}
	return f.auth(), nil
}

func (f *fakeBackend) CreateConversation(_ context.Context, _ uuid.UUID, title string) (ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return ConversationSummary{}, f.createErr
	}
	c := ConversationSummary{ID: uuid.New(), Title: title}
	f.conversations = append([]ConversationSummary{c}, f.conversations...)
	return c, nil
}

func (f *fakeBackend) ListConversations(context.Context, uuid.UUID) ([]ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ConversationSummary{}, f.conversations...), nil
}

func (f *fakeBackend) ListMessages(_ context.Context, _ uuid.UUID, id uuid.UUID) ([]Message, error) {
	msgs, ok := f.stored[id]
	if !ok {
		return nil, errors.New("no such conversation")
	}
	return msgs, nil
}

func (f *fakeBackend) InsertMessage(_ context.Context, conv uuid.UUID, role Role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnInsert {
		panic("driver exploded")
	}
	if f.insertErr != nil {
		return f.insertErr
	}
	f.messages = append(f.messages, storedMessage{Conversation: conv, Role: role, Content: content})
	return nil
}

func (f *fakeBackend) RecentMessagesFromOtherConversations(context.Context, uuid.UUID, uuid.UUID, int) ([]Message, error) {
	f.recentCalls++
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return f.recent, nil
}

func (f *fakeBackend) GetAllMemory(context.Context, uuid.UUID) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.memory == nil {
		return nil, nil
	}
	out := make(map[string]string, len(f.memory))
	for k, v := range f.memory {
		out[k] = v
	}
	return out, nil
}

func (f *fakeBackend) UpsertMemory(_ context.Context, _ uuid.UUID, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, values)
	if f.memory == nil {
		f.memory = map[string]string{}
	}
	for k, v := range values {
		f.memory[k] = v
	}
	return nil
}

func (f *fakeBackend) GetProfile(context.Context, uuid.UUID) (*UserProfile, error) {
	return f.profile, nil
}

func (f *fakeBackend) UpsertProfile(_ context.Context, _ uuid.UUID, p UserProfile) error {
	f.profiles = append(f.profiles, p)
	return nil
}

type harness struct {
	svc         *Service
	nlu         *fakeNLU
	checkers    *fakeCheckers
	responder   *fakeResponder
	translator  *fakeTranslator
	transcriber *fakeTranscriber
	decoder     *fakeDecoder
	synth       *fakeSynth
	sink        *fakeSink
}

func newHarness(t *testing.T, backend Backend) *harness {
	t.Helper()
	h := &harness{
		nlu:         &fakeNLU{results: map[string]*NLUResult{}},
		checkers:    &fakeCheckers{},
		responder:   &fakeResponder{},
		translator:  &fakeTranslator{},
		transcriber: &fakeTranscriber{},
		decoder:     &fakeDecoder{},
		synth:       &fakeSynth{},
		sink:        &fakeSink{got: make(chan Assessment, 4)},
	}
	svc, err := NewService(Deps{
		NLU:         h.nlu,
		Checkers:    h.checkers,
		Responder:   h.responder,
		Translator:  h.translator,
		Transcriber: h.transcriber,
		Decoder:     h.decoder,
		Cleaner:     resamplingCleaner{},
		Synthesizer: h.synth,
		Backend:     backend,
		Sink:        h.sink,
	}, Options{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h.svc = svc
	return h
}

func countRole(msgs []Message, role Role) int {
	n := 0
	for _, m := range msgs {
		if m.Role == role {
			n++
		}
	}
	return n
}

func twoQuestions() *scriptedChecker {
	return &scriptedChecker{questions: []FollowUpQuestion{
		{SymptomName: "fever", Question: "How high is it?"},
		{SymptomName: "headache", Question: "Where does it hurt?"},
	}}
}
