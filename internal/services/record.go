package services

import (
	"strings"
	"time"

	"github.com/ajramos/gmail-inbox/internal/gmail"
)

// DefaultHeaders are the headers requested for every inbox row
var DefaultHeaders = []string{"To", "From", "Subject", "Date"}

// InvalidDate is shown when the Date header cannot be parsed
const InvalidDate = "Invalid Date Invalid Date"

const (
	longDateLayout  = "Monday, 02 Jan 2006"
	shortTimeLayout = "3:04 PM"
)

// DisplayRecord is one inbox row. Records are values: a refetch replaces the
// record instead of updating it.
type DisplayRecord struct {
	From      string `json:"From"`
	To        string `json:"To"`
	Subject   string `json:"Subject"`
	Date      string `json:"Date"`
	MessageID string `json:"MessageId"`
	ThreadID  string `json:"ThreadId"`
	LabelIDs  string `json:"LabelIds"`
	Snippet   string `json:"Snippet"`
}

// Unread reports whether the record carries the UNREAD label
func (r DisplayRecord) Unread() bool {
	for _, l := range strings.Split(r.LabelIDs, ",") {
		if l == "UNREAD" {
			return true
		}
	}
	return false
}

// JoinRecord flattens meta into a display record for id. Later duplicate
// headers overwrite earlier ones.
func JoinRecord(id gmail.MessageID, meta *gmail.RawMetadata, loc *time.Location) DisplayRecord {
	rec := DisplayRecord{MessageID: id.ID, ThreadID: id.ThreadID}
	var rawDate string
	if meta != nil {
		for _, h := range meta.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				rec.From = h.Value
			case "to":
				rec.To = h.Value
			case "subject":
				rec.Subject = h.Value
			case "date":
				rawDate = h.Value
			}
		}
		if rec.ThreadID == "" {
			rec.ThreadID = meta.ThreadID
		}
		rec.LabelIDs = strings.Join(meta.LabelIDs, ",")
		rec.Snippet = meta.Snippet
	}
	rec.Date = FormatDisplayDate(rawDate, loc)
	return rec
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04 -0700",
	time.RFC3339,
	time.RFC850,
	time.ANSIC,
}

// ParseMailDate parses a Date header in the forms seen in the wild
func ParseMailDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	// drop a trailing zone comment such as "(UTC)"
	if i := strings.LastIndex(raw, " ("); i > 0 && strings.HasSuffix(raw, ")") {
		raw = strings.TrimSpace(raw[:i])
	}
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDisplayDate renders a Date header as "Monday, 02 Jan 2006 3:04 PM"
// in loc, or InvalidDate
func FormatDisplayDate(raw string, loc *time.Location) string {
	t, ok := ParseMailDate(raw)
	if !ok {
		return InvalidDate
	}
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return t.Format(longDateLayout) + " " + t.Format(shortTimeLayout)
}
