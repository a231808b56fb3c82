package services

import (
	"context"

	"github.com/ajramos/gmail-inbox/internal/config"
	"github.com/ajramos/gmail-inbox/internal/gmail"
)

// MessageLister lists message ids one page token at a time
type MessageLister interface {
	ListPage(ctx context.Context, opts gmail.ListOptions) (*gmail.ListResult, error)
}

// MetadataFetcher fetches the requested headers of one message
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, id string, headers []string) (*gmail.RawMetadata, error)
}

// BodyFetcher fetches the body of one message by MIME preference
type BodyFetcher interface {
	FetchBody(ctx context.Context, id, mimePreference string) (string, error)
}

// MailClient is everything a page load needs from one account's client
type MailClient interface {
	MessageLister
	MetadataFetcher
	BodyFetcher
}

// MessageActions are the single-message mutations offered from the inbox
type MessageActions interface {
	BodyFetcher
	TrashMessage(ctx context.Context, id string) error
	UntrashMessage(ctx context.Context, id string) error
	SendMessage(ctx context.Context, env gmail.Envelope) gmail.Confirmation
	ListTrash(ctx context.Context, maxResults int64) (*gmail.ListResult, error)
	FetchRaw(ctx context.Context, id string) (string, error)
}

// SnapshotStore is a text key/value backend for page snapshots
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, key, payload string, count int) error
	LoadSnapshot(ctx context.Context, key string) (string, bool, error)
	ClearSnapshots(ctx context.Context) error
	CountSnapshots(ctx context.Context) (int, error)
}

// PageCache holds the last good first page per account for offline use
type PageCache interface {
	Get(ctx context.Context, account string) ([]DisplayRecord, bool, error)
	Put(ctx context.Context, account string, records []DisplayRecord) error
	Clear(ctx context.Context) error
	IsEmpty(ctx context.Context) (bool, error)
}

// PreferenceSource supplies the fetch preferences read before every load
type PreferenceSource interface {
	AccountConfig(ctx context.Context) (config.AccountConfig, error)
}

// Prefetcher writes message bodies to local preview files in the background
type Prefetcher interface {
	Start(ctx context.Context, fetcher BodyFetcher, account string, page int, ids []gmail.MessageID) *PrefetchTask
}

// Notifier receives user-facing notices from the pager
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(n Notice)

// Notify calls f(n)
func (f NotifierFunc) Notify(n Notice) { f(n) }
