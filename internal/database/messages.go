package database

import (
	"context"
	"time"

	"converse-backend/internal/models"
)

const messageSelect = `
	SELECT m.id, m.channel_id, m.content, m.type, m.is_edited, m.created_at, m.updated_at,
		u.id, u.username, u.avatar, u.status
	FROM messages m
	JOIN users u ON u.id = m.author_id`

// scanMessage reads a message with its author already resolved, the shape
// every reader gets.
func scanMessage(row interface{ Scan(...any) error }) (models.Message, error) {
	var (
		message   models.Message
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&message.ID, &message.ChannelID, &message.Content, &message.Type, &message.IsEdited, &createdAt, &updatedAt,
		&message.Author.ID, &message.Author.Username, &message.Author.Avatar, &message.Author.Status)
	if err != nil {
		return message, notFound(err)
	}
	message.CreatedAt = fromMillis(createdAt)
	message.UpdatedAt = fromMillis(updatedAt)
	return message, nil
}

func (q *Queries) InsertMessage(ctx context.Context, message models.Message) error {
	_, err := q.q.ExecContext(ctx, "INSERT INTO messages (id, channel_id, author_id, content, type, is_edited, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		message.ID, message.ChannelID, message.Author.ID, message.Content, message.Type, message.IsEdited, millis(message.CreatedAt), millis(message.UpdatedAt))
	return err
}

// AppendChannelMessage adds messageID to the channel's ordered message list.
func (q *Queries) AppendChannelMessage(ctx context.Context, channelID int64, messageID int64) error {
	_, err := q.q.ExecContext(ctx, "INSERT INTO channel_messages (channel_id, message_id) VALUES (?, ?)", channelID, messageID)
	return err
}

func (q *Queries) RemoveChannelMessage(ctx context.Context, channelID int64, messageID int64) error {
	_, err := q.q.ExecContext(ctx, "DELETE FROM channel_messages WHERE channel_id = ? AND message_id = ?", channelID, messageID)
	return err
}

func (q *Queries) ChannelMessageIDs(ctx context.Context, channelID int64) (models.IDList, error) {
	return q.ids(ctx, "SELECT message_id FROM channel_messages WHERE channel_id = ? ORDER BY message_id", channelID)
}

func (q *Queries) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	return scanMessage(q.q.QueryRowContext(ctx, messageSelect+" WHERE m.id = ?", messageID))
}

// ListMessages returns the newest page first, skipping offset messages.
// Snowflake ids sort by creation time.
func (q *Queries) ListMessages(ctx context.Context, channelID int64, limit int, offset int) ([]models.Message, error) {
	rows, err := q.q.QueryContext(ctx, messageSelect+" WHERE m.channel_id = ? ORDER BY m.id DESC LIMIT ? OFFSET ?", channelID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

func (q *Queries) UpdateMessageContent(ctx context.Context, messageID int64, content string, updatedAt time.Time) error {
	return expectOne(q.q.ExecContext(ctx, "UPDATE messages SET content = ?, is_edited = ?, updated_at = ? WHERE id = ?", content, true, millis(updatedAt), messageID))
}

func (q *Queries) DeleteMessage(ctx context.Context, messageID int64) error {
	return expectOne(q.q.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", messageID))
}
