package triage

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestCleanAssistantText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Assistant: Drink water.", "Drink water."},
		{"Doctor reply: Rest today.", "Rest today."},
		{"Take this seriously: see a doctor.", "Take this seriously: see a doctor."},
		{"No label here.", "No label here."},
		{"Answer:", "Answer:"},
		{"  padded  ", "padded"},
	}
	for _, tt := range tests {
		if got := CleanAssistantText(tt.in); got != tt.want {
			t.Errorf("CleanAssistantText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripMarkdown(t *testing.T) {
	in := "### Title\n**Bold** and *italic*\n- item one\n* item two\nuse `code` ✅"
	want := "Title\nBold and italic\nitem one\nitem two\nuse code"
	if got := StripMarkdown(in); got != want {
		t.Errorf("StripMarkdown = %q, want %q", got, want)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("See a doctor. Rest!  Drink fluids? Dose 2.5 mg daily")
	want := []string{"See a doctor.", "Rest!", "Drink fluids?", "Dose 2.5 mg daily"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitSentences = %q, want %q", got, want)
	}
	if got := splitSentences("   "); len(got) != 0 {
		t.Errorf("blank input gave %q", got)
	}
}

func TestConversationTitle(t *testing.T) {
	if got := conversationTitle("", 50); got != "Chat" {
		t.Errorf("empty title = %q", got)
	}
	if got := conversationTitle("short", 50); got != "short" {
		t.Errorf("short title = %q", got)
	}
	if got := conversationTitle("सिरदर्द और बुखार", 5); got != "सिरदर…" {
		t.Errorf("rune-aware title = %q", got)
	}
}

func TestStepsJSON(t *testing.T) {
	var a Assessment
	if err := json.Unmarshal([]byte(`{"recommended_next_steps":["rest","fluids"]}`), &a); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.RecommendedNextSteps.Items, []string{"rest", "fluids"}) {
		t.Errorf("Items = %v", a.RecommendedNextSteps.Items)
	}
	if err := json.Unmarshal([]byte(`{"recommended_next_steps":"Rest."}`), &a); err != nil {
		t.Fatal(err)
	}
	if a.RecommendedNextSteps.Text != "Rest." || a.RecommendedNextSteps.Items != nil {
		t.Errorf("Steps = %+v", a.RecommendedNextSteps)
	}
	if err := json.Unmarshal([]byte(`{"recommended_next_steps":42}`), &a); err == nil {
		t.Error("expected error for numeric steps")
	}
}
