package database

import (
	"context"

	"converse-backend/internal/models"
)

const channelColumns = "id, community_id, name, description, type, created_at"

func scanChannel(row interface{ Scan(...any) error }) (models.Channel, error) {
	var (
		channel   models.Channel
		createdAt int64
	)
	err := row.Scan(&channel.ID, &channel.CommunityID, &channel.Name, &channel.Description, &channel.Type, &createdAt)
	if err != nil {
		return channel, notFound(err)
	}
	channel.CreatedAt = fromMillis(createdAt)
	channel.Messages = models.IDList{}
	return channel, nil
}

// InsertChannel appends the channel to the end of its community's channel
// list. Run it in a transaction so two concurrent inserts can't share a
// position.
func (q *Queries) InsertChannel(ctx context.Context, channel models.Channel) error {
	var position int
	err := q.q.QueryRowContext(ctx, "SELECT COALESCE(MAX(position) + 1, 0) FROM channels WHERE community_id = ?", channel.CommunityID).Scan(&position)
	if err != nil {
		return err
	}

	_, err = q.q.ExecContext(ctx, "INSERT INTO channels (id, community_id, name, description, type, position, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		channel.ID, channel.CommunityID, channel.Name, channel.Description, channel.Type, position, millis(channel.CreatedAt))
	return err
}

// GetChannel returns the channel with its ordered message id list.
func (q *Queries) GetChannel(ctx context.Context, channelID int64) (models.Channel, error) {
	channel, err := scanChannel(q.q.QueryRowContext(ctx, "SELECT "+channelColumns+" FROM channels WHERE id = ?", channelID))
	if err != nil {
		return channel, err
	}

	channel.Messages, err = q.ChannelMessageIDs(ctx, channelID)
	return channel, err
}

// ListChannels returns a community's channels in list order, without their
// message lists.
func (q *Queries) ListChannels(ctx context.Context, communityID int64) ([]models.Channel, error) {
	rows, err := q.q.QueryContext(ctx, "SELECT "+channelColumns+" FROM channels WHERE community_id = ? ORDER BY position, id", communityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := []models.Channel{}
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

func (q *Queries) ChannelIDs(ctx context.Context, communityID int64) (models.IDList, error) {
	return q.ids(ctx, "SELECT id FROM channels WHERE community_id = ? ORDER BY position, id", communityID)
}

// DeleteChannel removes the channel and its messages. Meetings that pointed
// at it lose their channel. Run it in a transaction.
func (q *Queries) DeleteChannel(ctx context.Context, channelID int64) error {
	statements := []string{
		"UPDATE meetings SET channel_id = NULL WHERE channel_id = ?",
		"DELETE FROM channel_messages WHERE channel_id = ?",
		"DELETE FROM messages WHERE channel_id = ?",
	}
	for _, statement := range statements {
		if _, err := q.q.ExecContext(ctx, statement, channelID); err != nil {
			return err
		}
	}

	return expectOne(q.q.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", channelID))
}

func (q *Queries) ChannelCommunityID(ctx context.Context, channelID int64) (int64, error) {
	var communityID int64
	err := q.q.QueryRowContext(ctx, "SELECT community_id FROM channels WHERE id = ?", channelID).Scan(&communityID)
	return communityID, notFound(err)
}
