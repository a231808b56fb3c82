package render

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/ajramos/gmail-inbox/internal/gmail"
	"github.com/mattn/go-runewidth"
)

// FormatBody turns a fetched message body into wrapped terminal text with a
// numbered link list appended. Bodies the client could not extract are
// returned verbatim.
func FormatBody(body string, width int) string {
	if strings.HasPrefix(body, gmail.BodyErrorPrefix) {
		return body
	}
	text := sanitizeForTerminal(body)
	var links []LinkRef
	if IsHTML(body) {
		if t, l, err := HTMLToText(body); err == nil {
			text, links = t, l
		}
	}
	text = WrapText(collapseBlankLines(text), width)
	if len(links) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n[LINKS]\n")
	for _, l := range links {
		fmt.Fprintf(&b, "[%d] %s\n", l.Index, l.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// WrapText wraps each line to width display cells, keeping "> " quote
// prefixes and never splitting URLs
func WrapText(input string, width int) string {
	if width <= 0 {
		return input
	}
	lines := strings.Split(input, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		prefix := ""
		rest := line
		for strings.HasPrefix(rest, "> ") {
			prefix += "> "
			rest = rest[2:]
		}
		words := strings.Fields(rest)
		if len(words) == 0 {
			out = append(out, strings.TrimRight(line, " "))
			continue
		}
		cur := prefix
		for _, w := range words {
			switch {
			case cur == prefix:
				cur += w
			case runewidth.StringWidth(cur)+1+runewidth.StringWidth(w) <= width:
				cur += " " + w
			default:
				out = append(out, cur)
				cur = prefix + w
			}
		}
		out = append(out, cur)
	}
	return strings.Join(out, "\n")
}

// Fit truncates s with an ellipsis and pads it to exactly width cells
func Fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = runewidth.Truncate(s, width, "...")
	return runewidth.FillRight(s, width)
}

// RightFit truncates s and right-aligns it in width cells
func RightFit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "")
	}
	return runewidth.FillLeft(s, width)
}

// SenderName returns the display name of a From header, or the address
// when there is no name
func SenderName(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		if addr.Name != "" {
			return addr.Name
		}
		return addr.Address
	}
	if i := strings.Index(from, "<"); i > 0 {
		return strings.Trim(strings.TrimSpace(from[:i]), `"`)
	}
	return from
}

// InboxRow lays out one inbox line: sender, subject and date columns
func InboxRow(from, subject, date string, width int) string {
	const dateWidth = 32
	if width < dateWidth+20 {
		return Fit(SenderName(from)+"  "+subject, width)
	}
	senderWidth := min(28, (width-dateWidth)/3)
	subjectWidth := width - dateWidth - senderWidth - 2
	return Fit(SenderName(from), senderWidth) + " " + Fit(subject, subjectWidth) + " " + RightFit(date, dateWidth)
}
