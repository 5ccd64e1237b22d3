//go:generate go run go.uber.org/mock/mockgen -source=index.go -destination=../../mocks/mock_search_index.go -package=mocks
// Package search keeps a Bluge full-text index of message content next to the primary store.
// The store stays the source of truth: the index only answers "which message ids of this chat
// contain this term", callers load the messages themselves.
package search

import (
	"chat-core/domain"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/blugelabs/bluge"
)

const (
	fieldChat    = "chat_id"
	fieldContent = "content_lower"
	fieldSentAt  = "sent_at"
)

type IMessageIndex interface {
	Index(message domain.Message) error
	Remove(messageID string) error
	Search(ctx context.Context, chatID, term string, limit int) ([]string, error)
	Close() error
}

type BlugeIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewBlugeIndex(path string, log *slog.Logger) (*BlugeIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("bluge opening failed: %w", err)
	}
	return &BlugeIndex{writer: writer, log: log}, nil
}

var _ IMessageIndex = (*BlugeIndex)(nil)

// Index stores the lowercased content as a single keyword term so a regexp query can
// match any substring of it, not only whole tokens.
func (b *BlugeIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID).
		AddField(bluge.NewKeywordField(fieldChat, message.ChatID)).
		AddField(bluge.NewKeywordField(fieldContent, strings.ToLower(message.Content))).
		AddField(bluge.NewNumericField(fieldSentAt, float64(message.CreatedAt.UnixNano())).StoreValue().Sortable())
	return b.writer.Update(doc.ID(), doc)
}

func (b *BlugeIndex) Remove(messageID string) error {
	return b.writer.Delete(bluge.Identifier(messageID))
}

// Search returns the ids of the chat's messages whose content contains term, ignoring case.
func (b *BlugeIndex) Search(ctx context.Context, chatID, term string, limit int) ([]string, error) {
	reader, err := b.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			b.log.Warn("Closing bluge reader failed", "error", err)
		}
	}()

	pattern := ".*" + regexp.QuoteMeta(strings.ToLower(term)) + ".*"
	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(chatID).SetField(fieldChat)).
		AddMust(bluge.NewRegexpQuery(pattern).SetField(fieldContent))

	request := bluge.NewTopNSearch(limit, query).SortBy([]string{fieldSentAt})
	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var ids []string
	match, err := matches.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				ids = append(ids, string(value))
			}
			return true
		})
		if err != nil {
			break
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (b *BlugeIndex) Close() error {
	return b.writer.Close()
}
