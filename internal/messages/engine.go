// Package messages owns the message lifecycle: who may post, edit and delete,
// and keeping each channel's message list in step with the messages table.
package messages

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"converse-backend/internal/apperr"
	"converse-backend/internal/database"
	"converse-backend/internal/hub"
	"converse-backend/internal/metrics"
	"converse-backend/internal/models"
	"converse-backend/internal/snowflake"

	"go.uber.org/zap"
)

const (
	MaxContentLength = 2000

	DefaultLimit = 50
	MaxLimit     = 100
)

// Notifier fans an event out to everyone subscribed to a channel room.
type Notifier interface {
	Emit(ctx context.Context, channelID int64, event string, data any) error
}

type Engine struct {
	sugar    *zap.SugaredLogger
	store    *database.Store
	notifier Notifier
	now      func() time.Time
}

func New(sugar *zap.SugaredLogger, store *database.Store, notifier Notifier) *Engine {
	return &Engine{sugar: sugar, store: store, notifier: notifier, now: time.Now}
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.New(apperr.Validation, "Message content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", apperr.New(apperr.Validation, fmt.Sprintf("Message content can't be longer than %d characters", MaxContentLength))
	}
	return content, nil
}

// requireMember resolves the channel's community and checks that userID
// belongs to it.
func (e *Engine) requireMember(ctx context.Context, userID int64, channelID int64) error {
	communityID, err := e.store.ChannelCommunityID(ctx, channelID)
	if errors.Is(err, database.ErrNotFound) {
		return apperr.New(apperr.NotFound, "Channel not found")
	} else if err != nil {
		return fmt.Errorf("resolving channel %d: %w", channelID, err)
	}

	isMember, err := e.store.IsMember(ctx, communityID, userID)
	if err != nil {
		return fmt.Errorf("checking membership: %w", err)
	}
	if !isMember {
		return apperr.New(apperr.Forbidden, "You are not a member of this community")
	}
	return nil
}

func (e *Engine) Create(ctx context.Context, authorID int64, channelID int64, content string, messageType models.MessageType) (models.Message, error) {
	content, err := validateContent(content)
	if err != nil {
		return models.Message{}, err
	}

	if messageType == "" {
		messageType = models.MessageText
	} else if !messageType.Valid() {
		return models.Message{}, apperr.New(apperr.Validation, "Invalid message type")
	}

	if err := e.requireMember(ctx, authorID, channelID); err != nil {
		return models.Message{}, err
	}

	messageID, err := snowflake.Generate()
	if err != nil {
		return models.Message{}, err
	}

	now := e.now()
	message := models.Message{
		ID:        messageID,
		Content:   content,
		Author:    models.Author{ID: authorID},
		ChannelID: channelID,
		Type:      messageType,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = e.store.WithTx(ctx, func(q *database.Queries) error {
		if err := q.InsertMessage(ctx, message); err != nil {
			return err
		}
		return q.AppendChannelMessage(ctx, channelID, messageID)
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("saving message: %w", err)
	}

	// read back so the caller, the room and later list calls all see the
	// exact same shape
	message, err = e.store.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, fmt.Errorf("reading message back: %w", err)
	}

	metrics.MessagesPosted.WithLabelValues(string(messageType)).Inc()
	e.notify(ctx, channelID, hub.MessageCreated, hub.MessagePayload{ChannelID: channelID, Message: message})
	return message, nil
}

func (e *Engine) getOwned(ctx context.Context, requesterID int64, messageID int64, action string) (models.Message, error) {
	message, err := e.store.GetMessage(ctx, messageID)
	if errors.Is(err, database.ErrNotFound) {
		return message, apperr.New(apperr.NotFound, "Message not found")
	} else if err != nil {
		return message, fmt.Errorf("loading message %d: %w", messageID, err)
	}

	if message.Author.ID != requesterID {
		e.sugar.Warnf("User ID [%d] tried to %s message ID [%d] of user ID [%d]", requesterID, action, messageID, message.Author.ID)
		return message, apperr.New(apperr.Forbidden, fmt.Sprintf("You can only %s your own messages", action))
	}
	return message, nil
}

// Edit replaces the content of the requester's own message. Concurrent edits
// are last write wins.
func (e *Engine) Edit(ctx context.Context, requesterID int64, messageID int64, content string) (models.Message, error) {
	// missing and foreign messages are reported before bad content
	if _, err := e.getOwned(ctx, requesterID, messageID, "edit"); err != nil {
		return models.Message{}, err
	}

	content, err := validateContent(content)
	if err != nil {
		return models.Message{}, err
	}

	err = e.store.UpdateMessageContent(ctx, messageID, content, e.now())
	if errors.Is(err, database.ErrNotFound) {
		return models.Message{}, apperr.New(apperr.NotFound, "Message not found")
	} else if err != nil {
		return models.Message{}, fmt.Errorf("updating message %d: %w", messageID, err)
	}

	message, err := e.store.GetMessage(ctx, messageID)
	if errors.Is(err, database.ErrNotFound) {
		return models.Message{}, apperr.New(apperr.NotFound, "Message not found")
	} else if err != nil {
		return models.Message{}, fmt.Errorf("reading message back: %w", err)
	}

	e.notify(ctx, message.ChannelID, hub.MessageUpdated, hub.MessagePayload{ChannelID: message.ChannelID, Message: message})
	return message, nil
}

// Delete removes the requester's own message for everyone.
func (e *Engine) Delete(ctx context.Context, requesterID int64, messageID int64) error {
	message, err := e.getOwned(ctx, requesterID, messageID, "delete")
	if err != nil {
		return err
	}

	err = e.store.WithTx(ctx, func(q *database.Queries) error {
		if err := q.RemoveChannelMessage(ctx, message.ChannelID, messageID); err != nil {
			return err
		}
		return q.DeleteMessage(ctx, messageID)
	})
	if errors.Is(err, database.ErrNotFound) {
		return apperr.New(apperr.NotFound, "Message not found")
	} else if err != nil {
		return fmt.Errorf("deleting message %d: %w", messageID, err)
	}

	e.notify(ctx, message.ChannelID, hub.MessageDeleted, hub.MessageDeletedPayload{ChannelID: message.ChannelID, MessageID: messageID})
	return nil
}

// List returns one page of a channel, oldest first. Paging runs from the
// newest message backwards: offset 0 is the latest page.
func (e *Engine) List(ctx context.Context, requesterID int64, channelID int64, limit int, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultLimit
	} else if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	if err := e.requireMember(ctx, requesterID, channelID); err != nil {
		return nil, err
	}

	messages, err := e.store.ListMessages(ctx, channelID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing messages of channel %d: %w", channelID, err)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (e *Engine) Get(ctx context.Context, requesterID int64, messageID int64) (models.Message, error) {
	message, err := e.store.GetMessage(ctx, messageID)
	if errors.Is(err, database.ErrNotFound) {
		return message, apperr.New(apperr.NotFound, "Message not found")
	} else if err != nil {
		return message, fmt.Errorf("loading message %d: %w", messageID, err)
	}

	if err := e.requireMember(ctx, requesterID, message.ChannelID); err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (e *Engine) notify(ctx context.Context, channelID int64, event string, data any) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Emit(ctx, channelID, event, data); err != nil {
		e.sugar.Errorf("Failed to emit %s to channel ID [%d]: %v", event, channelID, err)
	}
}
