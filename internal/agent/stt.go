package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"triage-assistant/internal/audio"
	"triage-assistant/internal/triage"
)

// WhisperLocal talks to a self-hosted Whisper HTTP service.
type WhisperLocal struct {
	url        string
	httpClient *http.Client
}

func NewWhisperLocal(url string) *WhisperLocal {
	return &WhisperLocal{
		url: url,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type sttResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (c *WhisperLocal) Transcribe(ctx context.Context, samples []float32, sampleRate int, lang string) (*triage.Transcription, error) {
	wav, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, err
	}
	if err := writer.WriteField("language", triage.PrimarySubtag(lang)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("STT API error: %s - %s", resp.Status, string(respBody))
	}

	var result sttResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &triage.Transcription{
		Text:             strings.TrimSpace(result.Text),
		LanguageDetected: normalizeLanguage(result.Language, lang),
	}, nil
}

// TranscriptionAPI is the slice of the OpenAI client used for speech.
type TranscriptionAPI interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAIWhisper transcribes through the OpenAI audio endpoint.
type OpenAIWhisper struct {
	api TranscriptionAPI
}

func NewOpenAIWhisper(api TranscriptionAPI) *OpenAIWhisper {
	return &OpenAIWhisper{api: api}
}

func (w *OpenAIWhisper) Transcribe(ctx context.Context, samples []float32, sampleRate int, lang string) (*triage.Transcription, error) {
	wav, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	resp, err := w.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: triage.PrimarySubtag(lang),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	return &triage.Transcription{
		Text:             strings.TrimSpace(resp.Text),
		LanguageDetected: normalizeLanguage(resp.Language, lang),
	}, nil
}

var whisperLanguages = map[string]string{
	"english":   "en",
	"hindi":     "hi",
	"bengali":   "bn",
	"marathi":   "mr",
	"kannada":   "kn",
	"tamil":     "ta",
	"telugu":    "te",
	"malayalam": "ml",
	"urdu":      "ur",
	"gujarati":  "gu",
	"punjabi":   "pa",
}

// normalizeLanguage turns what the recognizer reported ("hindi", "hi",
// "hi-IN") into a tag comparable with the declared one. An agreeing primary
// subtag yields the declared tag itself; an empty detection is treated as
// agreement.
func normalizeLanguage(detected, declared string) string {
	d := strings.ToLower(strings.TrimSpace(detected))
	if d == "" {
		return declared
	}
	code, ok := whisperLanguages[d]
	if !ok {
		code = triage.PrimarySubtag(d)
	}
	if code == triage.PrimarySubtag(declared) {
		return declared
	}
	if tag := code + "-IN"; triage.SupportedLanguage(tag) {
		return tag
	}
	return code
}
