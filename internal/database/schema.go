package database

import "context"

// Statements are written so sqlite and mysql/mariadb both accept them.
// Times are unix milliseconds.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		username VARCHAR(30) NOT NULL UNIQUE,
		email VARCHAR(64) NOT NULL UNIQUE,
		password BINARY(60) NOT NULL,
		avatar TEXT NOT NULL,
		status VARCHAR(16) NOT NULL,
		preferences TEXT NOT NULL,
		linked_accounts TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS communities (
		id BIGINT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		name VARCHAR(50) NOT NULL,
		description TEXT NOT NULL,
		icon VARCHAR(32) NOT NULL,
		is_public BOOLEAN NOT NULL,
		created_at BIGINT NOT NULL,
		FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS community_members (
		community_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		joined_at BIGINT NOT NULL,
		PRIMARY KEY (community_id, user_id),
		FOREIGN KEY (community_id) REFERENCES communities(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id BIGINT PRIMARY KEY,
		community_id BIGINT NOT NULL,
		name VARCHAR(50) NOT NULL,
		description TEXT NOT NULL,
		type VARCHAR(8) NOT NULL,
		position INT NOT NULL,
		created_at BIGINT NOT NULL,
		FOREIGN KEY (community_id) REFERENCES communities(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGINT PRIMARY KEY,
		channel_id BIGINT NOT NULL,
		author_id BIGINT NOT NULL,
		content TEXT NOT NULL,
		type VARCHAR(8) NOT NULL,
		is_edited BOOLEAN NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
		FOREIGN KEY (author_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	// the ordered message list of a channel, kept next to messages.channel_id
	`CREATE TABLE IF NOT EXISTS channel_messages (
		channel_id BIGINT NOT NULL,
		message_id BIGINT NOT NULL,
		PRIMARY KEY (channel_id, message_id),
		FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS meetings (
		id BIGINT PRIMARY KEY,
		community_id BIGINT NOT NULL,
		channel_id BIGINT,
		organizer_id BIGINT NOT NULL,
		title VARCHAR(100) NOT NULL,
		description TEXT NOT NULL,
		start_time BIGINT NOT NULL,
		end_time BIGINT,
		reminder VARCHAR(4) NOT NULL,
		status VARCHAR(16) NOT NULL,
		meeting_link TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		FOREIGN KEY (community_id) REFERENCES communities(id) ON DELETE CASCADE,
		FOREIGN KEY (organizer_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS meeting_participants (
		meeting_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		joined_at BIGINT NOT NULL,
		PRIMARY KEY (meeting_id, user_id),
		FOREIGN KEY (meeting_id) REFERENCES meetings(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
}

// mysql indexes foreign keys by itself
var sqliteIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_members_user ON community_members(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_channels_community ON channels(community_id, position)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_meetings_community ON meetings(community_id, start_time)`,
}

func (s *Store) setupTables(ctx context.Context) error {
	for _, statement := range tables {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}

	if !s.sqlite {
		return nil
	}

	for _, statement := range sqliteIndexes {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}
