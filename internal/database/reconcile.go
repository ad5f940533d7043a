package database

import (
	"context"
	"time"
)

type ChannelMessage struct {
	ChannelID int64
	MessageID int64
}

type Membership struct {
	CommunityID int64
	UserID      int64
}

// Report lists every place where the duplicated references disagree.
type Report struct {
	// channel list entries with no message behind them in that channel
	StaleListEntries []ChannelMessage
	// messages missing from their channel's list
	UnlistedMessages []ChannelMessage
	// memberships whose user or community is gone
	DanglingMemberships []Membership
	// owners that are not members of their own community
	OwnersNotMembers []Membership
}

func (r Report) Clean() bool {
	return len(r.StaleListEntries) == 0 && len(r.UnlistedMessages) == 0 &&
		len(r.DanglingMemberships) == 0 && len(r.OwnersNotMembers) == 0
}

// Reconcile audits the denormalized references and, with repair set, fixes
// them in the same transaction: stale entries and dangling memberships are
// removed, unlisted messages are appended and owners are added back.
func (s *Store) Reconcile(ctx context.Context, repair bool) (Report, error) {
	var report Report

	err := s.WithTx(ctx, func(q *Queries) error {
		var err error

		report.StaleListEntries, err = q.channelMessagePairs(ctx, `
			SELECT cm.channel_id, cm.message_id FROM channel_messages cm
			LEFT JOIN messages m ON m.id = cm.message_id AND m.channel_id = cm.channel_id
			WHERE m.id IS NULL`)
		if err != nil {
			return err
		}

		report.UnlistedMessages, err = q.channelMessagePairs(ctx, `
			SELECT m.channel_id, m.id FROM messages m
			LEFT JOIN channel_messages cm ON cm.message_id = m.id AND cm.channel_id = m.channel_id
			WHERE cm.message_id IS NULL`)
		if err != nil {
			return err
		}

		report.DanglingMemberships, err = q.memberships(ctx, `
			SELECT cm.community_id, cm.user_id FROM community_members cm
			LEFT JOIN users u ON u.id = cm.user_id
			LEFT JOIN communities c ON c.id = cm.community_id
			WHERE u.id IS NULL OR c.id IS NULL`)
		if err != nil {
			return err
		}

		report.OwnersNotMembers, err = q.memberships(ctx, `
			SELECT c.id, c.owner_id FROM communities c
			LEFT JOIN community_members cm ON cm.community_id = c.id AND cm.user_id = c.owner_id
			WHERE cm.user_id IS NULL`)
		if err != nil {
			return err
		}

		if !repair {
			return nil
		}
		return q.repair(ctx, report)
	})

	return report, err
}

func (q *Queries) repair(ctx context.Context, report Report) error {
	for _, entry := range report.StaleListEntries {
		if err := q.RemoveChannelMessage(ctx, entry.ChannelID, entry.MessageID); err != nil {
			return err
		}
	}
	for _, entry := range report.UnlistedMessages {
		if err := q.AppendChannelMessage(ctx, entry.ChannelID, entry.MessageID); err != nil {
			return err
		}
	}
	for _, membership := range report.DanglingMemberships {
		if err := q.RemoveMember(ctx, membership.CommunityID, membership.UserID); err != nil {
			return err
		}
	}
	now := time.Now()
	for _, membership := range report.OwnersNotMembers {
		if err := q.AddMember(ctx, membership.CommunityID, membership.UserID, now); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queries) channelMessagePairs(ctx context.Context, query string) ([]ChannelMessage, error) {
	rows, err := q.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []ChannelMessage
	for rows.Next() {
		var pair ChannelMessage
		if err := rows.Scan(&pair.ChannelID, &pair.MessageID); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

func (q *Queries) memberships(ctx context.Context, query string) ([]Membership, error) {
	rows, err := q.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []Membership
	for rows.Next() {
		var membership Membership
		if err := rows.Scan(&membership.CommunityID, &membership.UserID); err != nil {
			return nil, err
		}
		memberships = append(memberships, membership)
	}
	return memberships, rows.Err()
}
