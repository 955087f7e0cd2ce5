package triage

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidStage        = errors.New("invalid stage transition")
	ErrEmptyUtterance      = errors.New("empty utterance")
	ErrBackendUnavailable  = errors.New("persistence backend not configured")
	ErrUnauthenticated     = errors.New("not signed in")
	ErrMissingCollaborator = errors.New("missing collaborator")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrNoAssessment        = errors.New("no assessment yet")
	ErrNoAudio             = errors.New("no audio captured")
	ErrNothingToSpeak      = errors.New("nothing to speak")
)

// User-facing system messages.
const (
	MsgProcessingError     = "Sorry, an error occurred while processing your request. Please try rephrasing or try again later."
	MsgEmptyTranscription  = "Could not understand the audio. Please try speaking again."
	MsgTranscriptionError  = "Sorry, the recording could not be processed"
	MsgDefaultDisclaimer   = "Always consult a doctor for medical advice."
	MsgAssessmentFallback  = "Could not format assessment. Raw data:"
	MsgAssessmentRawFailed = "Could not format or serialize assessment"
)
