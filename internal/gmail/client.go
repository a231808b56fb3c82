package gmail

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
)

const (
	// MaxPageSize is the largest page the list endpoint accepts.
	MaxPageSize = 500

	// LabelInbox and LabelTrash are the system labels used for listing.
	LabelInbox = "INBOX"
	LabelTrash = "TRASH"
)

// Client wraps the gmail.Service and provides the calls the inbox needs.
// Every call goes through a circuit breaker and returns *TransportError or
// *AuthError on failure.
type Client struct {
	Service *gmail.Service

	user    string
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker

	mu           sync.Mutex
	profileEmail string
}

// NewClient creates a new Gmail client acting as the authenticated user.
func NewClient(service *gmail.Service, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		Service: service,
		user:    "me",
		logger:  logger,
		breaker: newBreaker("gmail-api", logger),
	}
}

// MessageID identifies a message in a list response.
type MessageID struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId,omitempty"`
}

// ListOptions controls one list call.
type ListOptions struct {
	PageToken        string
	MaxResults       int64
	Query            string
	LabelIDs         []string
	IncludeSpamTrash bool
}

// ListResult is one page of message ids.
type ListResult struct {
	IDs                []MessageID
	NextPageToken      string
	ResultSizeEstimate int64
}

// Header is a single name/value pair from a message payload.
type Header struct {
	Name  string
	Value string
}

// RawMetadata is the metadata view of one message. HasPayload is false when
// the response carried no payload at all.
type RawMetadata struct {
	ID         string
	ThreadID   string
	Headers    []Header
	LabelIDs   []string
	Snippet    string
	HasPayload bool
}

func (c *Client) ready() error {
	if c == nil || c.Service == nil {
		return ErrClientNotInitialized
	}
	return nil
}

// ListPage returns one page of message ids and the token for the next one.
// An empty NextPageToken means there are no further pages.
func (c *Client) ListPage(ctx context.Context, opts ListOptions) (*ListResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	call := c.Service.Users.Messages.List(c.user).Context(ctx)
	if opts.MaxResults > 0 {
		call = call.MaxResults(min(opts.MaxResults, MaxPageSize))
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}
	if opts.Query != "" {
		call = call.Q(opts.Query)
	}
	if len(opts.LabelIDs) > 0 {
		call = call.LabelIds(opts.LabelIDs...)
	}
	if opts.IncludeSpamTrash {
		call = call.IncludeSpamTrash(true)
	}

	var res *gmail.ListMessagesResponse
	err := c.execute("list", func() error {
		var err error
		res, err = call.Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &ListResult{
		IDs:                make([]MessageID, 0, len(res.Messages)),
		NextPageToken:      res.NextPageToken,
		ResultSizeEstimate: res.ResultSizeEstimate,
	}
	for _, m := range res.Messages {
		if m == nil || m.Id == "" {
			continue
		}
		out.IDs = append(out.IDs, MessageID{ID: m.Id, ThreadID: m.ThreadId})
	}
	return out, nil
}

// ListTrash returns the first page of trashed messages.
func (c *Client) ListTrash(ctx context.Context, maxResults int64) (*ListResult, error) {
	return c.ListPage(ctx, ListOptions{
		MaxResults:       maxResults,
		LabelIDs:         []string{LabelTrash},
		IncludeSpamTrash: true,
	})
}

// FetchMetadata returns the requested headers, labels and snippet of one
// message. A response without payload is not an error here; HasPayload is
// false and Headers is empty.
func (c *Client) FetchMetadata(ctx context.Context, id string, headers []string) (*RawMetadata, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	call := c.Service.Users.Messages.Get(c.user, id).Format("metadata").Context(ctx)
	if len(headers) > 0 {
		call = call.MetadataHeaders(headers...)
	}

	var msg *gmail.Message
	err := c.execute("metadata", func() error {
		var err error
		msg, err = call.Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	meta := &RawMetadata{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		LabelIDs: msg.LabelIds,
		Snippet:  msg.Snippet,
	}
	if msg.Payload != nil {
		meta.HasPayload = true
		for _, h := range msg.Payload.Headers {
			if h == nil {
				continue
			}
			meta.Headers = append(meta.Headers, Header{Name: h.Name, Value: h.Value})
		}
	}
	return meta, nil
}

// FetchBody returns the decoded body of a message, preferring a part whose
// MIME type contains mimePreference. A message without payload yields a
// string starting with BodyErrorPrefix; one without matching part yields
// NoMessageBody.
func (c *Client) FetchBody(ctx context.Context, id, mimePreference string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	var msg *gmail.Message
	err := c.execute("body", func() error {
		var err error
		msg, err = c.Service.Users.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	return extractBody(msg, mimePreference), nil
}

// FetchSnippet returns the short preview Gmail keeps for a message.
func (c *Client) FetchSnippet(ctx context.Context, id string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	var msg *gmail.Message
	err := c.execute("snippet", func() error {
		var err error
		msg, err = c.Service.Users.Messages.Get(c.user, id).Format("minimal").Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	return msg.Snippet, nil
}

// FetchRaw returns the full RFC 2822 source of a message.
func (c *Client) FetchRaw(ctx context.Context, id string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	var msg *gmail.Message
	err := c.execute("raw", func() error {
		var err error
		msg, err = c.Service.Users.Messages.Get(c.user, id).Format("raw").Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	if msg.Raw == "" {
		return "", &EmptyPayloadError{Op: "raw", MessageID: id}
	}
	data, err := decodeBase64URL(msg.Raw)
	if err != nil {
		return "", fmt.Errorf("decode raw message %s: %w", id, err)
	}
	return string(data), nil
}

// Envelope is an outgoing message.
type Envelope struct {
	SenderName     string
	SenderEmail    string
	RecipientName  string
	RecipientEmail string
	Subject        string
	ContentType    string
	Body           string
}

// Confirmation reports the outcome of a send. An empty ID means the send
// failed and Err says why.
type Confirmation struct {
	ID       string
	ThreadID string
	LabelIDs []string
	Err      error
}

// OK reports whether the provider accepted the message.
func (c Confirmation) OK() bool { return c.ID != "" }

// SendMessage sends env as a raw message.
func (c *Client) SendMessage(ctx context.Context, env Envelope) Confirmation {
	if err := c.ready(); err != nil {
		return Confirmation{Err: err}
	}
	if strings.TrimSpace(env.RecipientEmail) == "" {
		return Confirmation{Err: fmt.Errorf("send message: recipient email is required")}
	}

	message := &gmail.Message{Raw: encodeEnvelope(env)}

	var sent *gmail.Message
	err := c.execute("send", func() error {
		var err error
		sent, err = c.Service.Users.Messages.Send(c.user, message).Context(ctx).Do()
		return err
	})
	if err != nil {
		return Confirmation{Err: err}
	}
	return Confirmation{ID: sent.Id, ThreadID: sent.ThreadId, LabelIDs: sent.LabelIds}
}

// TrashMessage moves a message to the trash.
func (c *Client) TrashMessage(ctx context.Context, id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.execute("trash", func() error {
		_, err := c.Service.Users.Messages.Trash(c.user, id).Context(ctx).Do()
		return err
	})
}

// UntrashMessage restores a message from the trash.
func (c *Client) UntrashMessage(ctx context.Context, id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.execute("untrash", func() error {
		_, err := c.Service.Users.Messages.Untrash(c.user, id).Context(ctx).Do()
		return err
	})
}

// ActiveAccountEmail returns the address of the authenticated user. The
// value is cached after the first successful lookup.
func (c *Client) ActiveAccountEmail(ctx context.Context) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	c.mu.Lock()
	cached := c.profileEmail
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var profile *gmail.Profile
	err := c.execute("profile", func() error {
		var err error
		profile, err = c.Service.Users.GetProfile(c.user).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.profileEmail = profile.EmailAddress
	c.mu.Unlock()
	return profile.EmailAddress, nil
}
