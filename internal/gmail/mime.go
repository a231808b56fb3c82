package gmail

import (
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"
)

const (
	// BodyErrorPrefix starts the string FetchBody returns for a message
	// without payload.
	BodyErrorPrefix = "FetchMsgBody Error: "

	// NoMessageBody is returned when no part matches the MIME preference.
	NoMessageBody = "(No Message Body)"

	// DefaultContentType is used for outgoing messages without one.
	DefaultContentType = "text/html"
)

// extractBody picks the body to show for msg. A non-empty top-level body wins;
// otherwise the first part (depth first) whose MIME type contains preference.
func extractBody(msg *gmail.Message, preference string) string {
	if msg == nil || msg.Payload == nil {
		id := ""
		if msg != nil {
			id = msg.Id
		}
		return BodyErrorPrefix + (&EmptyPayloadError{Op: "body", MessageID: id}).Error()
	}

	if body := msg.Payload.Body; body != nil && body.Size != 0 && body.Data != "" {
		return decodeBodyData(body.Data)
	}

	part := findPart(msg.Payload.Parts, preference)
	if part == nil {
		return NoMessageBody
	}
	return decodeBodyData(part.Body.Data)
}

func findPart(parts []*gmail.MessagePart, preference string) *gmail.MessagePart {
	preference = strings.ToLower(preference)
	for _, p := range parts {
		if p == nil {
			continue
		}
		if p.Body != nil && p.Body.Data != "" && strings.Contains(strings.ToLower(p.MimeType), preference) {
			return p
		}
		if found := findPart(p.Parts, preference); found != nil {
			return found
		}
	}
	return nil
}

func decodeBodyData(data string) string {
	decoded, err := decodeBase64URL(data)
	if err != nil {
		return BodyErrorPrefix + err.Error()
	}
	return string(decoded)
}

// decodeBase64URL accepts padded or unpadded base64url, falling back to the
// standard alphabet.
func decodeBase64URL(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return b, nil
}

// encodeEnvelope renders env as a raw message in unpadded base64url.
func encodeEnvelope(env Envelope) string {
	contentType := env.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From: %s\n", formatAddress(env.SenderName, env.SenderEmail)))
	sb.WriteString(fmt.Sprintf("To: %s\n", formatAddress(env.RecipientName, env.RecipientEmail)))
	sb.WriteString(fmt.Sprintf("Content-Type: %s; charset=UTF-8\n", contentType))
	sb.WriteString("MIME-Version: 1.0\n")
	sb.WriteString(fmt.Sprintf("Subject: %s\n", env.Subject))
	sb.WriteString("\n")
	sb.WriteString(env.Body)

	return base64.RawURLEncoding.EncodeToString([]byte(sb.String()))
}

func formatAddress(name, email string) string {
	if name == "" {
		return "<" + email + ">"
	}
	return name + " <" + email + ">"
}
