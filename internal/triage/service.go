package triage

import (
	"fmt"
	"time"

	"triage-assistant/internal/platform/logger"
)

// Deps are the collaborators the orchestrator calls. NLU, Checkers,
// Responder, Translator, Transcriber and Decoder are required; the rest
// fall back to null implementations.
type Deps struct {
	NLU         NLU
	Checkers    CheckerFactory
	Responder   ResponseGenerator
	Translator  Translator
	Transcriber Transcriber
	Decoder     AudioDecoder
	Cleaner     AudioCleaner
	Synthesizer Synthesizer
	Backend     Backend
	Sink        AssessmentSink
	Log         *logger.Logger
}

type Options struct {
	MaxSymptoms      int
	MaxAnswers       int
	MaxAdviceChars   int
	MaxPastMessages  int
	TitlePrefixChars int
	MemorySymptomCap int
	CallTimeout      time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxSymptoms:      20,
		MaxAnswers:       20,
		MaxAdviceChars:   800,
		MaxPastMessages:  8,
		TitlePrefixChars: 50,
		MemorySymptomCap: 20,
		CallTimeout:      5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxSymptoms <= 0 {
		o.MaxSymptoms = d.MaxSymptoms
	}
	if o.MaxAnswers <= 0 {
		o.MaxAnswers = d.MaxAnswers
	}
	if o.MaxAdviceChars <= 0 {
		o.MaxAdviceChars = d.MaxAdviceChars
	}
	if o.MaxPastMessages <= 0 {
		o.MaxPastMessages = d.MaxPastMessages
	}
	if o.TitlePrefixChars <= 0 {
		o.TitlePrefixChars = d.TitlePrefixChars
	}
	if o.MemorySymptomCap <= 0 {
		o.MemorySymptomCap = d.MemorySymptomCap
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = d.CallTimeout
	}
	return o
}

// Service orchestrates turns against a Session. It holds no session state
// itself and is safe for concurrent use across sessions.
type Service struct {
	nlu         NLU
	checkers    CheckerFactory
	responder   ResponseGenerator
	translator  Translator
	transcriber Transcriber
	decoder     AudioDecoder
	cleaner     AudioCleaner
	synthesizer Synthesizer
	sink        AssessmentSink
	backend     Backend

	ctxb *ContextAssembler
	sync *Syncer
	log  *logger.Logger
	opts Options
}

func NewService(d Deps, opts Options) (*Service, error) {
	required := map[string]interface{}{
		"nlu":         d.NLU,
		"checkers":    d.Checkers,
		"responder":   d.Responder,
		"translator":  d.Translator,
		"transcriber": d.Transcriber,
		"decoder":     d.Decoder,
	}
	for name, v := range required {
		if v == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingCollaborator, name)
		}
	}

	opts = opts.withDefaults()
	s := &Service{
		nlu:         d.NLU,
		checkers:    d.Checkers,
		responder:   d.Responder,
		translator:  d.Translator,
		transcriber: d.Transcriber,
		decoder:     d.Decoder,
		cleaner:     d.Cleaner,
		synthesizer: d.Synthesizer,
		sink:        d.Sink,
		backend:     d.Backend,
		log:         d.Log,
		opts:        opts,
	}
	if s.cleaner == nil {
		s.cleaner = PassthroughCleaner{}
	}
	if s.synthesizer == nil {
		s.synthesizer = nopSynthesizer{}
	}
	if s.sink == nil {
		s.sink = nopSink{}
	}
	if s.backend == nil {
		s.backend = NopBackend{}
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.sync = NewSyncer(s.backend, s.log, opts)
	s.ctxb = NewContextAssembler(s.backend, s.log, opts)
	return s, nil
}

// RoutePath tells the caller which branch handled a turn.
type RoutePath string

const (
	PathFollowUp  RoutePath = "follow_up"
	PathNewQuery  RoutePath = "new_query"
	PathDuplicate RoutePath = "duplicate"
	PathVoice     RoutePath = "voice"
)

// TurnResult carries the messages a single invocation appended.
type TurnResult struct {
	Path       RoutePath `json:"path"`
	Messages   []Message `json:"messages"`
	Transcript string    `json:"transcript,omitempty"`
}
