package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// StartCapture arms the microphone. A capture left in any other stage is
// abandoned along with its audio.
func (s *Service) StartCapture(sess *Session) error {
	sess.Voice.reset()
	return sess.Voice.to(VoiceArming)
}

// AppendAudio adds a chunk of encoded audio to the capture in progress.
func (s *Service) AppendAudio(sess *Session, chunk []byte) error {
	switch sess.Voice.Stage() {
	case VoiceArming:
		if err := sess.Voice.to(VoiceRecording); err != nil {
			return err
		}
	case VoiceRecording:
	default:
		return fmt.Errorf("%w: append audio while %s", ErrInvalidStage, sess.Voice.Stage())
	}
	sess.Voice.raw = append(sess.Voice.raw, chunk...)
	return nil
}

// StopCapture ends recording and keeps the raw bytes for ProcessCapture.
func (s *Service) StopCapture(sess *Session) error {
	switch sess.Voice.Stage() {
	case VoiceArming, VoiceRecording:
	default:
		return fmt.Errorf("%w: stop capture while %s", ErrInvalidStage, sess.Voice.Stage())
	}
	if err := sess.Voice.to(VoiceIdle); err != nil {
		return err
	}
	if !sess.Voice.HasRawAudio() {
		return ErrNoAudio
	}
	return nil
}

// ProcessCapture runs decode, clean and transcribe over the stopped capture
// and routes the transcript. The voice stage is idle when it returns.
func (s *Service) ProcessCapture(ctx context.Context, sess *Session, turnID string) (TurnResult, error) {
	if sess.Voice.Stage() != VoiceIdle {
		stage := sess.Voice.Stage()
		sess.Voice.reset()
		return TurnResult{}, fmt.Errorf("%w: process capture while %s", ErrInvalidStage, stage)
	}
	if !sess.Voice.HasRawAudio() {
		return TurnResult{}, ErrNoAudio
	}
	if sess.markTurn(turnID) {
		sess.Voice.reset()
		return TurnResult{Path: PathDuplicate, Messages: []Message{}}, nil
	}

	mark := len(sess.Conversation)
	text, err := s.transcribeCapture(ctx, sess)
	sess.Voice.reset()
	switch {
	case err != nil:
		s.log.Error("voice pipeline failed", "session_id", sess.ID, "error", err)
		sess.append(RoleSystem, fmt.Sprintf("%s: %v", MsgTranscriptionError, err), "")
		return TurnResult{Path: PathVoice, Messages: sess.since(mark)}, nil
	case text == "":
		sess.append(RoleSystem, MsgEmptyTranscription, "")
		return TurnResult{Path: PathVoice, Messages: sess.since(mark)}, nil
	}

	path := s.route(ctx, sess, text)
	return TurnResult{Path: path, Messages: sess.since(mark), Transcript: text}, nil
}

// SubmitVoice runs a whole capture from one uploaded recording.
func (s *Service) SubmitVoice(ctx context.Context, sess *Session, audio []byte, turnID string) (TurnResult, error) {
	if len(audio) == 0 {
		return TurnResult{}, ErrNoAudio
	}
	if err := s.StartCapture(sess); err != nil {
		return TurnResult{}, err
	}
	if err := s.AppendAudio(sess, audio); err != nil {
		sess.Voice.reset()
		return TurnResult{}, err
	}
	if err := s.StopCapture(sess); err != nil {
		sess.Voice.reset()
		return TurnResult{}, err
	}
	return s.ProcessCapture(ctx, sess, turnID)
}

func (s *Service) transcribeCapture(ctx context.Context, sess *Session) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	// 1. Decode and clean
	if err := sess.Voice.to(VoiceTranscribing); err != nil {
		return "", err
	}
	samples, rate, err := s.decoder.Decode(sess.Voice.raw)
	if err != nil {
		return "", fmt.Errorf("decode audio: %w", err)
	}
	if len(samples) == 0 {
		return "", errors.New("decode audio: no samples")
	}
	cleaned, cleanedRate, err := s.cleaner.Clean(samples, rate)
	if err != nil {
		return "", fmt.Errorf("clean audio: %w", err)
	}
	sess.Voice.cleaned = &CleanedAudio{Samples: cleaned, SampleRate: cleanedRate}

	// 2. Transcribe in the declared language
	if err := sess.Voice.to(VoiceProcessingSTT); err != nil {
		return "", err
	}
	tr, err := s.transcriber.Transcribe(ctx, cleaned, cleanedRate, sess.Lang)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if tr == nil {
		return "", nil
	}
	text = strings.TrimSpace(tr.Text)
	if text == "" {
		return "", nil
	}

	// 3. Normalize a mismatched detection. The tag is compared as reported;
	// transcribers map a same-language detection onto the declared tag.
	// English sessions go through the dedicated to-English path, others
	// translate into the session language.
	detected := strings.TrimSpace(tr.LanguageDetected)
	if detected == sess.Lang {
		return text, nil
	}
	var out string
	if sess.Lang == CanonicalLanguage {
		out, err = s.translator.TranslateToEnglish(ctx, text)
	} else {
		out, err = s.translator.Translate(ctx, text, sess.Lang)
	}
	if err != nil {
		return "", fmt.Errorf("normalize transcript from %s: %w", detected, err)
	}
	return strings.TrimSpace(out), nil
}
