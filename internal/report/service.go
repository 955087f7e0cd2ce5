// Package report renders assessments as PDF and forwards them to a
// clinician chat.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/signintech/gopdf"

	"triage-assistant/internal/platform/logger"
	"triage-assistant/internal/triage"
)

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName string) error
}

var defaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

type Service struct {
	tgClient     TelegramClient
	doctorChatID int64
	fontPaths    []string
	log          *logger.Logger
	now          func() time.Time
}

// NewService returns a renderer. Delivery is skipped while tg is nil or
// doctorChatID is zero.
func NewService(tg TelegramClient, doctorChatID int64, log *logger.Logger) *Service {
	return &Service{
		tgClient:     tg,
		doctorChatID: doctorChatID,
		fontPaths:    defaultFontPaths,
		log:          log.With("service", "report"),
		now:          time.Now,
	}
}

type lineKind int

const (
	kindTitle lineKind = iota
	kindHeading
	kindText
	kindSmall
)

type line struct {
	kind lineKind
	text string
}

// reportLines lays out the document independent of the PDF backend.
func reportLines(a triage.Assessment, lang string, at time.Time) []line {
	out := []line{
		{kindTitle, "Preliminary Health Assessment"},
		{kindText, fmt.Sprintf("Date: %s", at.Format("02.01.2006 15:04"))},
		{kindText, fmt.Sprintf("Language: %s", triage.LanguageName(lang))},
	}
	if a.SuggestedSeverity != "" {
		out = append(out, line{kindText, "Suggested severity: " + a.SuggestedSeverity})
	}
	out = append(out, line{kindHeading, "Summary"}, line{kindText, a.Summary})

	steps := a.RecommendedNextSteps.Items
	if len(steps) == 0 && strings.TrimSpace(a.RecommendedNextSteps.Text) != "" {
		steps = []string{a.RecommendedNextSteps.Text}
	}
	if len(steps) > 0 {
		out = append(out, line{kindHeading, "Recommended next steps"})
		for _, s := range steps {
			out = append(out, line{kindText, "- " + s})
		}
	}
	if len(a.PotentialWarnings) > 0 {
		out = append(out, line{kindHeading, "Potential warnings"})
		for _, w := range a.PotentialWarnings {
			out = append(out, line{kindText, "- " + w})
		}
	}
	if len(a.KBTriagePoints) > 0 {
		out = append(out, line{kindHeading, "Relevant triage points"})
		for _, p := range a.KBTriagePoints {
			out = append(out, line{kindText, "- " + p})
		}
	}
	disclaimer := a.Disclaimer
	if disclaimer == "" {
		disclaimer = triage.MsgDefaultDisclaimer
	}
	return append(out, line{kindSmall, disclaimer})
}

func (s *Service) loadFont(pdf *gopdf.GoPdf) error {
	var fontErr error
	for _, path := range s.fontPaths {
		fontErr = pdf.AddTTFFont("DejaVu", path)
		if fontErr == nil {
			return nil
		}
	}
	if fontErr == nil {
		fontErr = errors.New("no font paths configured")
	}
	return fmt.Errorf("failed to load font for PDF. Please ensure ttf-dejavu is installed. Last error: %w", fontErr)
}

// RenderPDF returns the assessment as an A4 PDF.
func (s *Service) RenderPDF(a triage.Assessment, lang string) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()
	if err := s.loadFont(&pdf); err != nil {
		return nil, err
	}
	pdf.SetMargins(40, 40, 40, 40)
	pdf.SetXY(40, 40)

	sizes := map[lineKind]float64{kindTitle: 20, kindHeading: 14, kindText: 11, kindSmall: 9}
	for _, l := range reportLines(a, lang, s.now()) {
		size := sizes[l.kind]
		if err := pdf.SetFont("DejaVu", "", size); err != nil {
			return nil, err
		}
		if l.kind == kindHeading || l.kind == kindSmall {
			pdf.Br(10)
		}
		parts, err := pdf.SplitText(l.text, 500)
		if err != nil {
			parts = []string{l.text}
		}
		for _, p := range parts {
			if pdf.GetY() > 780 {
				pdf.AddPage()
				pdf.SetXY(40, 40)
			}
			pdf.SetX(40)
			if err := pdf.Cell(nil, p); err != nil {
				return nil, err
			}
			pdf.Br(size + 4)
		}
		if l.kind == kindTitle {
			pdf.Br(10)
		}
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// Deliver sends a short notice and the PDF to the clinician chat.
func (s *Service) Deliver(ctx context.Context, sessionID uuid.UUID, a triage.Assessment, lang string) error {
	if s.tgClient == nil || s.doctorChatID == 0 {
		return nil
	}
	doc, err := s.RenderPDF(a, lang)
	if err != nil {
		return err
	}
	notice := fmt.Sprintf("New triage assessment (%s severity, %s)", orUnknown(a.SuggestedSeverity), triage.LanguageName(lang))
	if err := s.tgClient.SendMessage(ctx, s.doctorChatID, notice); err != nil {
		s.log.Warn("telegram notice failed", "error", err)
	}
	fileName := fmt.Sprintf("assessment_%s.pdf", sessionID.String())
	if err := s.tgClient.SendDocument(ctx, s.doctorChatID, doc, fileName); err != nil {
		return fmt.Errorf("sending report: %w", err)
	}
	s.log.Info("assessment report sent", "session_id", sessionID.String())
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
