package triage

import (
	"regexp"
	"strings"
	"unicode"
)

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// conversationTitle derives a title from the first persisted message.
func conversationTitle(content string, n int) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return "Chat"
	}
	if len([]rune(content)) <= n {
		return content
	}
	return truncate(content, n) + "…"
}

var labelPrefix = regexp.MustCompile(`^\s*([^\s:]+(?:\s+[^\s:]+)?)\s*:\s*`)

// CleanAssistantText drops a short leading label such as "Assistant:" or
// "Doctor reply:" that models sometimes prepend.
func CleanAssistantText(s string) string {
	s = strings.TrimSpace(s)
	if m := labelPrefix.FindStringSubmatchIndex(s); m != nil {
		rest := strings.TrimSpace(s[m[1]:])
		if rest != "" {
			return rest
		}
	}
	return s
}

var (
	mdBold    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic  = regexp.MustCompile(`\*(.+?)\*`)
	mdHeading = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	mdBullet  = regexp.MustCompile(`(?m)^\s*[-*•]\s+`)
	mdCode    = regexp.MustCompile("`([^`]*)`")
)

// StripMarkdown reduces rendered markdown to plain text suitable for
// speech synthesis.
func StripMarkdown(s string) string {
	s = mdBold.ReplaceAllString(s, "$1")
	s = mdItalic.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdBullet.ReplaceAllString(s, "")
	s = mdCode.ReplaceAllString(s, "$1")
	s = strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r == 0xFE0F || r == 0x200D:
		return true
	}
	return false
}

// splitSentences breaks free text into sentences at '.', '!' or '?'
// followed by whitespace.
func splitSentences(s string) []string {
	var out []string
	rs := []rune(s)
	start := 0
	for i := 0; i < len(rs); i++ {
		switch rs[i] {
		case '.', '!', '?':
			if i+1 < len(rs) && unicode.IsSpace(rs[i+1]) {
				if part := strings.TrimSpace(string(rs[start : i+1])); part != "" {
					out = append(out, part)
				}
				start = i + 1
			}
		}
	}
	if part := strings.TrimSpace(string(rs[start:])); part != "" {
		out = append(out, part)
	}
	return out
}
