package triage

import "fmt"

type SymptomState int

const (
	// SymptomIdle: no follow-up interview in progress.
	SymptomIdle SymptomState = iota
	// SymptomQuestioning: checker is live, next question not yet fetched.
	SymptomQuestioning
	// SymptomAwaitingAnswer: a question is pending; the next utterance answers it.
	SymptomAwaitingAnswer
	// SymptomAssessing: questions exhausted, assessment being produced.
	SymptomAssessing
)

func (s SymptomState) String() string {
	switch s {
	case SymptomIdle:
		return "idle"
	case SymptomQuestioning:
		return "questioning"
	case SymptomAwaitingAnswer:
		return "awaiting_answer"
	case SymptomAssessing:
		return "assessing"
	default:
		return fmt.Sprintf("symptom_state(%d)", int(s))
	}
}

// SymptomSession tracks the follow-up interview. Extracted symptoms and
// answers outlive a single interview; state, pending question and checker
// do not.
type SymptomSession struct {
	Extracted []string
	Answers   []FollowUpAnswer

	state   SymptomState
	pending FollowUpQuestion
	checker SymptomChecker
}

func (s *SymptomSession) State() SymptomState { return s.state }

// Active reports whether an interview is in progress.
func (s *SymptomSession) Active() bool { return s.state != SymptomIdle }

// Pending returns the question awaiting an answer, if any.
func (s *SymptomSession) Pending() (FollowUpQuestion, bool) {
	if s.state != SymptomAwaitingAnswer {
		return FollowUpQuestion{}, false
	}
	return s.pending, true
}

func (s *SymptomSession) addSymptoms(names ...string) {
	for _, n := range names {
		if n == "" {
			continue
		}
		dup := false
		for _, have := range s.Extracted {
			if have == n {
				dup = true
				break
			}
		}
		if !dup {
			s.Extracted = append(s.Extracted, n)
		}
	}
}

func (s *SymptomSession) begin(c SymptomChecker) {
	s.state = SymptomQuestioning
	s.pending = FollowUpQuestion{}
	s.checker = c
}

func (s *SymptomSession) await(q FollowUpQuestion) {
	s.state = SymptomAwaitingAnswer
	s.pending = q
}

// answered records the answer to the pending question and moves back to
// questioning. It returns false when nothing was pending.
func (s *SymptomSession) answered(answer string) (FollowUpAnswer, bool) {
	q, ok := s.Pending()
	if !ok {
		return FollowUpAnswer{}, false
	}
	a := FollowUpAnswer{SymptomName: q.SymptomName, Question: q.Question, Answer: answer}
	s.Answers = append(s.Answers, a)
	s.state = SymptomQuestioning
	s.pending = FollowUpQuestion{}
	return a, true
}

func (s *SymptomSession) assessing() {
	s.state = SymptomAssessing
	s.pending = FollowUpQuestion{}
}

// close ends the interview and drops the checker handle.
func (s *SymptomSession) close() {
	s.state = SymptomIdle
	s.pending = FollowUpQuestion{}
	s.checker = nil
}

// reset closes the interview and forgets everything it accumulated.
func (s *SymptomSession) reset() {
	s.close()
	s.Extracted = nil
	s.Answers = nil
}

type VoiceStage int

const (
	VoiceIdle VoiceStage = iota
	VoiceArming
	VoiceRecording
	VoiceTranscribing
	VoiceProcessingSTT
)

func (v VoiceStage) String() string {
	switch v {
	case VoiceIdle:
		return "idle"
	case VoiceArming:
		return "arming"
	case VoiceRecording:
		return "recording"
	case VoiceTranscribing:
		return "transcribing"
	case VoiceProcessingSTT:
		return "processing_stt"
	default:
		return fmt.Sprintf("voice_stage(%d)", int(v))
	}
}

var voiceTransitions = map[VoiceStage][]VoiceStage{
	VoiceIdle:          {VoiceArming, VoiceTranscribing},
	VoiceArming:        {VoiceRecording, VoiceIdle},
	VoiceRecording:     {VoiceIdle},
	VoiceTranscribing:  {VoiceProcessingSTT, VoiceIdle},
	VoiceProcessingSTT: {VoiceIdle},
}

type CleanedAudio struct {
	Samples    []float32
	SampleRate int
}

// VoiceCapture is the capture → clean → transcribe stage machine state.
type VoiceCapture struct {
	stage   VoiceStage
	raw     []byte
	cleaned *CleanedAudio
}

func (v *VoiceCapture) Stage() VoiceStage { return v.stage }

// HasRawAudio reports whether a stopped capture is waiting to be processed.
func (v *VoiceCapture) HasRawAudio() bool { return len(v.raw) > 0 }

func (v *VoiceCapture) to(next VoiceStage) error {
	for _, allowed := range voiceTransitions[v.stage] {
		if allowed == next {
			v.stage = next
			return nil
		}
	}
	return fmt.Errorf("%w: voice %s -> %s", ErrInvalidStage, v.stage, next)
}

// reset returns to idle and drops every buffer.
func (v *VoiceCapture) reset() {
	v.stage = VoiceIdle
	v.raw = nil
	v.cleaned = nil
}
