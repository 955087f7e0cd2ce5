package triage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PDFRenderer turns an assessment into a printable document.
type PDFRenderer interface {
	RenderPDF(a Assessment, lang string) ([]byte, error)
}

type Handler struct {
	svc      *Service
	sessions *Registry
	pdf      PDFRenderer
	defLang  string
}

func NewHandler(svc *Service, sessions *Registry, pdf PDFRenderer, defaultLang string) *Handler {
	if !SupportedLanguage(defaultLang) {
		defaultLang = CanonicalLanguage
	}
	return &Handler{svc: svc, sessions: sessions, pdf: pdf, defLang: defaultLang}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Post("/messages", h.SubmitText)
		r.Post("/voice/start", h.StartVoice)
		r.Post("/voice", h.SubmitVoice)
		r.Post("/language", h.SetLanguage)
		r.Post("/clear", h.Clear)
		r.Put("/profile", h.SaveProfile)
		r.Post("/tts", h.TTS)
		r.Post("/auth/signin", h.SignIn)
		r.Post("/auth/signup", h.SignUp)
		r.Post("/auth/resume", h.Resume)
		r.Post("/auth/signout", h.SignOut)
		r.Get("/conversations", h.ListConversations)
		r.Post("/conversations/new", h.NewConversation)
		r.Post("/conversations/{cid}/open", h.OpenConversation)
		r.Get("/assessment.pdf", h.AssessmentPDF)
	})
}

type createSessionRequest struct {
	Lang string `json:"lang"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
	}
	lang := req.Lang
	if lang == "" {
		lang = h.defLang
	}
	if !SupportedLanguage(lang) {
		http.Error(w, "Unsupported language", http.StatusBadRequest)
		return
	}
	sess := h.sessions.Create(lang)
	var view SessionView
	_ = h.sessions.Do(sess.ID, func(s *Session) error {
		view = s.View()
		return nil
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, view)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *Session) error {
		writeJSON(w, s.View())
		return nil
	})
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitTextRequest struct {
	Text   string `json:"text"`
	TurnID string `json:"turn_id"`
}

func (h *Handler) SubmitText(w http.ResponseWriter, r *http.Request) {
	var req submitTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	h.withSession(w, r, func(s *Session) error {
		res, err := h.svc.SubmitText(r.Context(), s, req.Text, req.TurnID)
		if err != nil {
			return err
		}
		writeJSON(w, res)
		return nil
	})
}

func (h *Handler) StartVoice(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *Session) error {
		if err := h.svc.StartCapture(s); err != nil {
			return err
		}
		writeJSON(w, map[string]string{"voice_stage": s.Voice.Stage().String()})
		return nil
	})
}

type voiceResponse struct {
	TurnResult
	AudioBase64 string `json:"audio_base64,omitempty"`
}

// SubmitVoice accepts the recording as multipart field "audio". When a
// capture was armed with /voice/start the upload completes it; otherwise the
// upload is treated as a whole capture.
func (h *Handler) SubmitVoice(w http.ResponseWriter, r *http.Request) {
	// Limit upload size (10MB)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Error retrieving audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		http.Error(w, "Failed to read audio file", http.StatusInternalServerError)
		return
	}
	turnID := r.FormValue("turn_id")

	h.withSession(w, r, func(s *Session) error {
		var res TurnResult
		var err error
		switch s.Voice.Stage() {
		case VoiceArming, VoiceRecording:
			if err = h.svc.AppendAudio(s, buf.Bytes()); err != nil {
				s.Voice.reset()
				return err
			}
			if err = h.svc.StopCapture(s); err != nil {
				s.Voice.reset()
				return err
			}
			res, err = h.svc.ProcessCapture(r.Context(), s, turnID)
		default:
			res, err = h.svc.SubmitVoice(r.Context(), s, buf.Bytes(), turnID)
		}
		if err != nil {
			return err
		}

		out := voiceResponse{TurnResult: res}
		if reply := lastAssistant(res.Messages); reply != "" {
			if audio, err := h.svc.Speak(r.Context(), s, reply); err == nil {
				out.AudioBase64 = base64.StdEncoding.EncodeToString(audio)
			}
		}
		writeJSON(w, out)
		return nil
	})
}

type languageRequest struct {
	Lang string `json:"lang"`
}

func (h *Handler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	h.withSession(w, r, func(s *Session) error {
		if err := h.svc.SetLanguage(s, req.Lang); err != nil {
			return err
		}
		writeJSON(w, s.View())
		return nil
	})
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *Session) error {
		h.svc.ClearSession(s)
		writeJSON(w, s.View())
		return nil
	})
}

func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var p UserProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	h.withSession(w, r, func(s *Session) error {
		h.svc.SaveProfile(r.Context(), s, p)
		writeJSON(w, s.Profile)
		return nil
	})
}

type ttsRequest struct {
	Text string `json:"text"`
}

func (h *Handler) TTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
	}
	h.withSession(w, r, func(s *Session) error {
		audio, err := h.svc.Speak(r.Context(), s, req.Text)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(audio)
		return nil
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resumeRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type authResponse struct {
	AccessToken   string                `json:"access_token"`
	RefreshToken  string                `json:"refresh_token"`
	Conversations []ConversationSummary `json:"conversations"`
	Session       SessionView           `json:"session"`
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.credentials(w, r, h.svc.SignIn)
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.credentials(w, r, h.svc.SignUp)
}

func (h *Handler) credentials(w http.ResponseWriter, r *http.Request, fn func(context.Context, *Session, string, string) error) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}
	h.withSession(w, r, func(s *Session) error {
		if err := fn(r.Context(), s, req.Email, req.Password); err != nil {
			return err
		}
		writeJSON(w, authView(s))
		return nil
	})
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	h.withSession(w, r, func(s *Session) error {
		if err := h.svc.Resume(r.Context(), s, req.AccessToken, req.RefreshToken); err != nil {
			return err
		}
		writeJSON(w, authView(s))
		return nil
	})
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *Session) error {
		h.svc.SignOut(s)
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *Session) error {
		list, err := h.svc.ListConversations(r.Context(), s)
		if err != nil {
			return err
		}
		writeJSON(w, list)
		return nil
	})
}

func (h *Handler) NewConversation(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *Session) error {
		h.svc.NewConversation(s)
		writeJSON(w, s.View())
		return nil
	})
}

func (h *Handler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	cid, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}
	h.withSession(w, r, func(s *Session) error {
		if err := h.svc.OpenConversation(r.Context(), s, cid); err != nil {
			return err
		}
		writeJSON(w, s.View())
		return nil
	})
}

func (h *Handler) AssessmentPDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		http.Error(w, "Reports are not configured", http.StatusNotImplemented)
		return
	}
	h.withSession(w, r, func(s *Session) error {
		a, err := h.svc.Assessment(s)
		if err != nil {
			return err
		}
		doc, err := h.pdf.RenderPDF(a, s.Lang)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="assessment.pdf"`)
		_, _ = w.Write(doc)
		return nil
	})
}

func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, fn func(*Session) error) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Do(id, fn); err != nil {
		writeError(w, err)
	}
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func authView(s *Session) authResponse {
	out := authResponse{
		Conversations: append([]ConversationSummary{}, s.Conversations...),
		Session:       s.View(),
	}
	if s.Auth != nil {
		out.AccessToken = s.Auth.AccessToken
		out.RefreshToken = s.Auth.RefreshToken
	}
	return out
}

func lastAssistant(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			return msgs[i].Content
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrEmptyUtterance), errors.Is(err, ErrUnsupportedLanguage), errors.Is(err, ErrNoAudio),
		errors.Is(err, ErrNothingToSpeak):
		status = http.StatusBadRequest
	case errors.Is(err, ErrInvalidStage), errors.Is(err, ErrNoAssessment):
		status = http.StatusConflict
	case errors.Is(err, ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
