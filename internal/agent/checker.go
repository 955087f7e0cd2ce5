package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"triage-assistant/internal/triage"
)

type symptomProfile struct {
	Questions    []string
	TriagePoints []string
}

// symptomBank is the knowledge base the checker interviews from. Keys are
// canonical English symptom names.
var symptomBank = map[string]symptomProfile{
	"fever": {
		Questions: []string{
			"How high has your temperature been, if you measured it?",
			"How many days have you had the fever?",
			"Do you also have chills, a rash or a stiff neck?",
		},
		TriagePoints: []string{
			"Fever above 39.5°C or lasting more than 3 days needs a doctor's review.",
			"Fever with a stiff neck, confusion or a non-fading rash is an emergency.",
		},
	},
	"headache": {
		Questions: []string{
			"Did the headache start suddenly or build up gradually?",
			"How severe is it on a scale of 1 to 10?",
			"Do you have vomiting, blurred vision or weakness anywhere?",
		},
		TriagePoints: []string{
			"A sudden, worst-ever headache needs emergency care.",
			"Headache with weakness, confusion or vision loss needs urgent review.",
		},
	},
	"cough": {
		Questions: []string{
			"Is the cough dry or are you bringing up phlegm?",
			"How long have you been coughing?",
			"Have you noticed any blood when you cough?",
		},
		TriagePoints: []string{
			"Cough lasting more than 3 weeks should be checked for tuberculosis.",
			"Coughing up blood needs prompt medical attention.",
		},
	},
	"sore throat": {
		Questions: []string{
			"Is it painful to swallow?",
			"Do you have a fever along with it?",
		},
		TriagePoints: []string{
			"Difficulty swallowing saliva or breathing with a sore throat is urgent.",
		},
	},
	"stomach pain": {
		Questions: []string{
			"Where exactly is the pain: upper, lower, left or right side?",
			"Is the pain constant or does it come and go?",
			"Do you have vomiting, diarrhoea or blood in your stool?",
		},
		TriagePoints: []string{
			"Severe pain in the lower right abdomen can indicate appendicitis.",
			"Abdominal pain with a rigid belly or black stools needs emergency care.",
		},
	},
	"vomiting": {
		Questions: []string{
			"How many times have you vomited in the last 24 hours?",
			"Are you able to keep fluids down?",
		},
		TriagePoints: []string{
			"Inability to keep fluids down for 24 hours risks dehydration.",
			"Vomiting blood needs emergency care.",
		},
	},
	"diarrhea": {
		Questions: []string{
			"How many loose stools have you had today?",
			"Have you noticed blood or mucus in the stool?",
		},
		TriagePoints: []string{
			"Watch for dehydration: little urine, dry mouth, dizziness.",
			"Bloody diarrhoea needs a doctor's review.",
		},
	},
	"dizziness": {
		Questions: []string{
			"Does the room spin, or do you feel faint?",
			"Have you fainted or fallen?",
		},
		TriagePoints: []string{
			"Dizziness with chest pain, fainting or slurred speech is an emergency.",
		},
	},
	"rash": {
		Questions: []string{
			"Where on your body is the rash?",
			"Does the rash fade when you press a glass against it?",
		},
		TriagePoints: []string{
			"A rash that does not fade under pressure with fever is an emergency.",
		},
	},
	"breathlessness": {
		Questions: []string{
			"Are you short of breath at rest or only on exertion?",
			"Do your lips or fingertips look bluish?",
		},
		TriagePoints: []string{
			"Breathlessness at rest or bluish lips needs emergency care.",
		},
	},
	"fatigue": {
		Questions: []string{
			"How long have you been feeling unusually tired?",
			"Have you noticed weight loss, fever or night sweats?",
		},
		TriagePoints: []string{
			"Fatigue lasting more than 2 weeks should be evaluated with blood tests.",
		},
	},
	"back pain": {
		Questions: []string{
			"Did the pain start after lifting or an injury?",
			"Do you have numbness in the legs or trouble passing urine?",
		},
		TriagePoints: []string{
			"Back pain with leg numbness or loss of bladder control is an emergency.",
		},
	},
}

var symptomAliases = map[string]string{
	"temperature":          "fever",
	"high temperature":     "fever",
	"head ache":            "headache",
	"migraine":             "headache",
	"throat pain":          "sore throat",
	"abdominal pain":       "stomach pain",
	"stomach ache":         "stomach pain",
	"stomachache":          "stomach pain",
	"belly pain":           "stomach pain",
	"nausea":               "vomiting",
	"loose motions":        "diarrhea",
	"diarrhoea":            "diarrhea",
	"vertigo":              "dizziness",
	"shortness of breath":  "breathlessness",
	"difficulty breathing": "breathlessness",
	"tiredness":            "fatigue",
	"weakness":             "fatigue",
	"lower back pain":      "back pain",
}

var genericQuestions = []string{
	"How long have you had %s?",
	"How severe is %s on a scale of 1 to 10?",
}

var redFlags = []string{
	"chest pain",
	"crushing chest",
	"can't breathe",
	"cannot breathe",
	"unable to breathe",
	"not breathing",
	"unconscious",
	"fainted",
	"passed out",
	"seizure",
	"severe bleeding",
	"bleeding heavily",
	"vomiting blood",
	"coughing blood",
	"blood in vomit",
	"slurred speech",
	"face drooping",
	"stroke",
	"heart attack",
	"blue lips",
	"suicid",
	"kill myself",
	"overdose",
	"poison",
}

// hasRedFlag reports whether text mentions a danger sign that must bypass
// the interview.
func hasRedFlag(text string) bool {
	t := strings.ToLower(text)
	for _, f := range redFlags {
		if mentions(t, f) {
			return true
		}
	}
	return false
}

// canonicalSymptom maps an extracted name onto the bank. The second result
// is false for symptoms the bank does not know.
func canonicalSymptom(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if _, ok := symptomBank[n]; ok {
		return n, true
	}
	if c, ok := symptomAliases[n]; ok {
		return c, true
	}
	return n, false
}

// CheckerFactory builds one Checker per follow-up interview.
type CheckerFactory struct {
	client       *Client
	MaxQuestions int
	PerSymptom   int
}

// NewCheckerFactory returns a factory. A nil client makes assessments purely
// rule-based.
func NewCheckerFactory(c *Client) *CheckerFactory {
	return &CheckerFactory{client: c, MaxQuestions: 6, PerSymptom: 2}
}

func (f *CheckerFactory) NewChecker(_ context.Context, nlu *triage.NLUResult) (triage.SymptomChecker, error) {
	ch := &Checker{
		client:       f.client,
		maxQuestions: f.MaxQuestions,
		perSymptom:   f.PerSymptom,
		mentioned:    map[string]bool{},
	}
	for _, n := range nlu.Symptoms() {
		c, _ := canonicalSymptom(n)
		if ch.mentioned[c] {
			continue
		}
		ch.mentioned[c] = true
		ch.symptoms = append(ch.symptoms, c)
	}
	return ch, nil
}

// Checker interviews the user about the symptoms of one query and produces
// an assessment. It is not safe for concurrent use.
type Checker struct {
	client       *Client
	maxQuestions int
	perSymptom   int

	symptoms  []string
	mentioned map[string]bool
	queue     []triage.FollowUpQuestion
	answers   []triage.FollowUpAnswer
	urgent    bool
}

func (c *Checker) PrepareFollowUpQuestions(_ context.Context) error {
	c.queue = c.queue[:0]
	if len(c.symptoms) == 0 {
		// Nothing named; ask about the complaint as a whole.
		for _, q := range genericQuestions {
			c.queue = append(c.queue, triage.FollowUpQuestion{Question: fmt.Sprintf(q, "your symptoms")})
		}
		return nil
	}
	for _, s := range c.symptoms {
		qs := questionsFor(s)
		if c.perSymptom > 0 && len(qs) > c.perSymptom {
			qs = qs[:c.perSymptom]
		}
		for _, q := range qs {
			if c.maxQuestions > 0 && len(c.queue) >= c.maxQuestions {
				return nil
			}
			c.queue = append(c.queue, triage.FollowUpQuestion{SymptomName: s, Question: q})
		}
	}
	return nil
}

func questionsFor(symptom string) []string {
	if p, ok := symptomBank[symptom]; ok {
		return p.Questions
	}
	out := make([]string, len(genericQuestions))
	for i, q := range genericQuestions {
		out[i] = fmt.Sprintf(q, symptom)
	}
	return out
}

func (c *Checker) NextQuestion(_ context.Context) (*triage.FollowUpQuestion, error) {
	if c.urgent || len(c.queue) == 0 {
		return nil, nil
	}
	q := c.queue[0]
	c.queue = c.queue[1:]
	return &q, nil
}

func (c *Checker) RecordAnswer(_ context.Context, symptom, question, answer string) error {
	c.answers = append(c.answers, triage.FollowUpAnswer{SymptomName: symptom, Question: question, Answer: answer})
	if hasRedFlag(answer) {
		c.urgent = true
	}
	// Symptoms volunteered in answers join the interview record.
	for _, s := range mentionedSymptoms(answer) {
		if !c.mentioned[s] {
			c.mentioned[s] = true
			c.symptoms = append(c.symptoms, s)
		}
	}
	return nil
}

func mentionedSymptoms(text string) []string {
	t := strings.ToLower(text)
	seen := map[string]bool{}
	var out []string
	add := func(term, s string) {
		if !seen[s] && mentions(t, term) {
			seen[s] = true
			out = append(out, s)
		}
	}
	for name := range symptomBank {
		add(name, name)
	}
	for alias, name := range symptomAliases {
		add(alias, name)
	}
	sort.Strings(out)
	return out
}

// mentions reports whether term occurs in t without a direct negation
// ("no fever", "not dizzy") in front of it.
func mentions(t, term string) bool {
	for from := 0; ; {
		i := strings.Index(t[from:], term)
		if i < 0 {
			return false
		}
		i += from
		before := strings.Fields(t[:i])
		if len(before) == 0 {
			return true
		}
		switch before[len(before)-1] {
		case "no", "not", "without", "never":
		default:
			return true
		}
		from = i + len(term)
	}
}

// CollectedSymptoms lists every symptom the interview touched: the ones
// asked about plus the ones volunteered in answers.
func (c *Checker) CollectedSymptoms() []string {
	return append([]string(nil), c.symptoms...)
}

const assessPrompt = `You are a cautious triage nurse. Using the symptoms, the follow-up answers and the knowledge-base points,
produce a preliminary assessment. Never diagnose. Respond with a JSON object only:
{"assessment_summary": string, "suggested_severity": one of "Low", "Moderate", "High", "Emergency",
 "recommended_next_steps": [string], "potential_warnings": [string], "disclaimer": string}`

func (c *Checker) Assess(ctx context.Context) (*triage.Assessment, error) {
	kb := c.triagePoints()
	if c.client != nil {
		if a, err := c.assessWithModel(ctx, kb); err == nil {
			return a, nil
		}
	}
	return c.assessByRules(kb), nil
}

func (c *Checker) assessWithModel(ctx context.Context, kb []string) (*triage.Assessment, error) {
	payload, err := json.Marshal(struct {
		Symptoms []string                `json:"symptoms"`
		Answers  []triage.FollowUpAnswer `json:"follow_up_answers"`
		KB       []string                `json:"knowledge_base"`
		Urgent   bool                    `json:"danger_sign_reported"`
	}{c.symptoms, c.answers, kb, c.urgent})
	if err != nil {
		return nil, err
	}
	var a triage.Assessment
	if err := c.client.completeJSON(ctx, assessPrompt, string(payload), &a); err != nil {
		return nil, fmt.Errorf("assess: %w", err)
	}
	if strings.TrimSpace(a.Summary) == "" {
		return nil, fmt.Errorf("assess: empty summary")
	}
	if c.urgent {
		a.SuggestedSeverity = severityEmergency
	}
	if len(a.KBTriagePoints) == 0 {
		a.KBTriagePoints = kb
	}
	if a.Disclaimer == "" {
		a.Disclaimer = triage.MsgDefaultDisclaimer
	}
	return &a, nil
}

func (c *Checker) triagePoints() []string {
	var out []string
	for _, s := range c.symptoms {
		out = append(out, symptomBank[s].TriagePoints...)
	}
	return out
}

const (
	severityLow       = "Low"
	severityModerate  = "Moderate"
	severityHigh      = "High"
	severityEmergency = "Emergency"
)

var (
	severeWords = regexp.MustCompile(`\b(severe|worst|unbearable|very bad|excruciating)\b`)
	outOfTen    = regexp.MustCompile(`\b(10|[1-9])\s*(?:/|out of)\s*10\b`)
	firstNumber = regexp.MustCompile(`\b(10|[1-9])\b`)
	longWords   = regexp.MustCompile(`\b(weeks?|months?|[4-9]\s*days?|[1-9][0-9]+\s*days?)\b`)
)

// assessByRules grades severity from the answers alone.
func (c *Checker) assessByRules(kb []string) *triage.Assessment {
	severity := severityLow
	if c.urgent {
		severity = severityEmergency
	} else {
		for _, a := range c.answers {
			t := strings.ToLower(a.Answer)
			switch {
			case severeWords.MatchString(t) || painScore(a.Question, t) >= 8:
				severity = maxSeverity(severity, severityHigh)
			case longWords.MatchString(t):
				severity = maxSeverity(severity, severityModerate)
			}
		}
	}

	about := "your symptoms"
	if len(c.symptoms) > 0 {
		about = strings.Join(c.symptoms, ", ")
	}
	a := &triage.Assessment{
		Summary: fmt.Sprintf("Based on your answers about %s, the symptoms appear to be of %s severity.",
			about, strings.ToLower(severity)),
		SuggestedSeverity:    severity,
		RecommendedNextSteps: triage.Steps{Items: stepsFor(severity)},
		KBTriagePoints:       kb,
		Disclaimer:           triage.MsgDefaultDisclaimer,
	}
	if c.urgent {
		a.PotentialWarnings = []string{"You reported a danger sign. Seek emergency care now."}
	}
	return a
}

// painScore extracts a 1-10 rating: "7/10" anywhere, or a bare number when
// the question asked for a scale. Zero means no rating.
func painScore(question, answer string) int {
	m := outOfTen.FindStringSubmatch(answer)
	if m == nil && strings.Contains(strings.ToLower(question), "scale of 1 to 10") {
		m = firstNumber.FindStringSubmatch(answer)
	}
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

var severityRank = map[string]int{severityLow: 0, severityModerate: 1, severityHigh: 2, severityEmergency: 3}

func maxSeverity(a, b string) string {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

func stepsFor(severity string) []string {
	switch severity {
	case severityEmergency:
		return []string{"Call 112 or go to the nearest emergency department now.", "Do not drive yourself."}
	case severityHigh:
		return []string{"See a doctor today.", "If symptoms get worse, go to an emergency department."}
	case severityModerate:
		return []string{"Book a doctor's appointment within the next few days.", "Rest and drink plenty of fluids."}
	default:
		return []string{"Rest and drink plenty of fluids.", "See a doctor if symptoms persist or worsen."}
	}
}
