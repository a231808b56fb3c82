package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajramos/gmail-inbox/internal/gmail"
	"github.com/ajramos/gmail-inbox/internal/render"
	"go.uber.org/zap"
)

// EmailServiceImpl performs single-message actions for the active account
type EmailServiceImpl struct {
	client   MessageActions
	previews *BodyPrefetcher
	logger   *zap.Logger
}

// NewEmailService creates an email service. previews may be nil.
func NewEmailService(client MessageActions, previews *BodyPrefetcher, logger *zap.Logger) *EmailServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailServiceImpl{client: client, previews: previews, logger: logger}
}

func (s *EmailServiceImpl) ready(messageID string) error {
	if s == nil || s.client == nil {
		return gmail.ErrClientNotInitialized
	}
	if messageID == "" {
		return fmt.Errorf("messageID cannot be empty")
	}
	return nil
}

// TrashMessage moves a message to the trash
func (s *EmailServiceImpl) TrashMessage(ctx context.Context, messageID string) error {
	if err := s.ready(messageID); err != nil {
		return err
	}
	if err := s.client.TrashMessage(ctx, messageID); err != nil {
		return fmt.Errorf("trash %s: %w", messageID, err)
	}
	s.logger.Info("message trashed", zap.String("message_id", messageID))
	return nil
}

// UntrashMessage restores a message from the trash
func (s *EmailServiceImpl) UntrashMessage(ctx context.Context, messageID string) error {
	if err := s.ready(messageID); err != nil {
		return err
	}
	if err := s.client.UntrashMessage(ctx, messageID); err != nil {
		return fmt.Errorf("untrash %s: %w", messageID, err)
	}
	s.logger.Info("message restored", zap.String("message_id", messageID))
	return nil
}

// ListTrash returns the ids of trashed messages
func (s *EmailServiceImpl) ListTrash(ctx context.Context, maxResults int64) ([]gmail.MessageID, error) {
	if s == nil || s.client == nil {
		return nil, gmail.ErrClientNotInitialized
	}
	res, err := s.client.ListTrash(ctx, maxResults)
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	return res.IDs, nil
}

// SendMessage sends env. A confirmation without an id is a failure.
func (s *EmailServiceImpl) SendMessage(ctx context.Context, env gmail.Envelope) (gmail.Confirmation, error) {
	if s == nil || s.client == nil {
		return gmail.Confirmation{}, gmail.ErrClientNotInitialized
	}
	if strings.TrimSpace(env.RecipientEmail) == "" {
		return gmail.Confirmation{}, fmt.Errorf("recipient cannot be empty")
	}
	conf := s.client.SendMessage(ctx, env)
	if !conf.OK() {
		err := conf.Err
		if err == nil {
			err = errors.New("no message id returned")
		}
		return conf, fmt.Errorf("send message: %w", err)
	}
	s.logger.Info("message sent", zap.String("message_id", conf.ID))
	return conf, nil
}

// ReadMessage returns the body of a message as wrapped terminal text. When
// the remote is unreachable the preview file written for account and page
// is used instead.
func (s *EmailServiceImpl) ReadMessage(ctx context.Context, account string, page int, messageID string, width int) (string, error) {
	if err := s.ready(messageID); err != nil {
		return "", err
	}
	body, err := s.client.FetchBody(ctx, messageID, PrefetchMIME)
	if err != nil {
		cached, ok := s.readPreview(account, page, messageID)
		if !ok {
			return "", fmt.Errorf("read %s: %w", messageID, err)
		}
		s.logger.Debug("serving body from preview file", zap.String("message_id", messageID), zap.Error(err))
		body = cached
	}
	return render.FormatBody(body, width), nil
}

func (s *EmailServiceImpl) readPreview(account string, page int, messageID string) (string, bool) {
	if s.previews == nil || account == "" {
		return "", false
	}
	base := s.previews.Path().WithAccount(account).WithMessage(messageID)
	for _, p := range []PreviewPath{base.WithPage(page), base.WithPage(0)} {
		data, err := os.ReadFile(p.File())
		if err == nil {
			return string(data), true
		}
	}
	return "", false
}

// SaveMessageToFile writes the raw RFC 822 message to path
func (s *EmailServiceImpl) SaveMessageToFile(ctx context.Context, messageID, path string) error {
	if err := s.ready(messageID); err != nil {
		return err
	}
	raw, err := s.client.FetchRaw(ctx, messageID)
	if err != nil {
		return fmt.Errorf("fetch raw %s: %w", messageID, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	return os.WriteFile(path, []byte(raw), 0o600)
}
