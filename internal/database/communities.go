package database

import (
	"context"
	"time"

	"converse-backend/internal/models"
)

const communityColumns = "id, owner_id, name, description, icon, is_public, created_at"

func scanCommunity(row interface{ Scan(...any) error }) (models.Community, error) {
	var (
		community models.Community
		createdAt int64
	)
	err := row.Scan(&community.ID, &community.OwnerID, &community.Name, &community.Description, &community.Icon, &community.IsPublic, &createdAt)
	if err != nil {
		return community, notFound(err)
	}
	community.CreatedAt = fromMillis(createdAt)
	return community, nil
}

func (q *Queries) InsertCommunity(ctx context.Context, community models.Community) error {
	_, err := q.q.ExecContext(ctx, "INSERT INTO communities ("+communityColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		community.ID, community.OwnerID, community.Name, community.Description, community.Icon, community.IsPublic, millis(community.CreatedAt))
	return err
}

// GetCommunity returns the community with members in join order and channels
// in their list order.
func (q *Queries) GetCommunity(ctx context.Context, communityID int64) (models.Community, error) {
	community, err := scanCommunity(q.q.QueryRowContext(ctx, "SELECT "+communityColumns+" FROM communities WHERE id = ?", communityID))
	if err != nil {
		return community, err
	}
	return community, q.fillCommunity(ctx, &community)
}

func (q *Queries) fillCommunity(ctx context.Context, community *models.Community) error {
	var err error
	community.Members, err = q.MemberIDs(ctx, community.ID)
	if err != nil {
		return err
	}
	community.Channels, err = q.ChannelIDs(ctx, community.ID)
	return err
}

func (q *Queries) CommunityExists(ctx context.Context, communityID int64) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM communities WHERE id = ?)", communityID).Scan(&exists)
	return exists, err
}

// ListUserCommunities returns the communities userID belongs to, oldest
// membership first.
func (q *Queries) ListUserCommunities(ctx context.Context, userID int64) ([]models.Community, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT c.id, c.owner_id, c.name, c.description, c.icon, c.is_public, c.created_at
		FROM communities c
		JOIN community_members m ON m.community_id = c.id
		WHERE m.user_id = ?
		ORDER BY m.joined_at, c.id`, userID)
	if err != nil {
		return nil, err
	}

	communities := []models.Community{}
	for rows.Next() {
		community, err := scanCommunity(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		communities = append(communities, community)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range communities {
		if err := q.fillCommunity(ctx, &communities[i]); err != nil {
			return nil, err
		}
	}
	return communities, nil
}

func (q *Queries) IsMember(ctx context.Context, communityID int64, userID int64) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM community_members WHERE community_id = ? AND user_id = ?)", communityID, userID).Scan(&exists)
	return exists, err
}

// AddMember writes one membership row, which is both Community.members and
// User.communities. ErrDuplicate if it already exists.
func (q *Queries) AddMember(ctx context.Context, communityID int64, userID int64, joinedAt time.Time) error {
	_, err := q.q.ExecContext(ctx, "INSERT INTO community_members (community_id, user_id, joined_at) VALUES (?, ?, ?)", communityID, userID, millis(joinedAt))
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

func (q *Queries) RemoveMember(ctx context.Context, communityID int64, userID int64) error {
	return expectOne(q.q.ExecContext(ctx, "DELETE FROM community_members WHERE community_id = ? AND user_id = ?", communityID, userID))
}

func (q *Queries) MemberIDs(ctx context.Context, communityID int64) (models.IDList, error) {
	return q.ids(ctx, "SELECT user_id FROM community_members WHERE community_id = ? ORDER BY joined_at, user_id", communityID)
}

func (q *Queries) UserCommunityIDs(ctx context.Context, userID int64) (models.IDList, error) {
	return q.ids(ctx, "SELECT community_id FROM community_members WHERE user_id = ? ORDER BY joined_at, community_id", userID)
}

// DeleteCommunity removes the community and everything under it: meetings,
// channels with their messages, and every membership. Run it in a
// transaction.
func (q *Queries) DeleteCommunity(ctx context.Context, communityID int64) error {
	statements := []string{
		"DELETE FROM meeting_participants WHERE meeting_id IN (SELECT id FROM meetings WHERE community_id = ?)",
		"DELETE FROM meetings WHERE community_id = ?",
		"DELETE FROM channel_messages WHERE channel_id IN (SELECT id FROM channels WHERE community_id = ?)",
		"DELETE FROM messages WHERE channel_id IN (SELECT id FROM channels WHERE community_id = ?)",
		"DELETE FROM channels WHERE community_id = ?",
		"DELETE FROM community_members WHERE community_id = ?",
	}
	for _, statement := range statements {
		if _, err := q.q.ExecContext(ctx, statement, communityID); err != nil {
			return err
		}
	}

	return expectOne(q.q.ExecContext(ctx, "DELETE FROM communities WHERE id = ?", communityID))
}

func (q *Queries) ids(ctx context.Context, query string, args ...any) (models.IDList, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := models.IDList{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
