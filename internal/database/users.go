package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"converse-backend/internal/models"
)

const userColumns = "id, username, email, password, avatar, status, preferences, linked_accounts, created_at"

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var (
		user        models.User
		preferences string
		linked      string
		createdAt   int64
	)

	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Password, &user.Avatar, &user.Status, &preferences, &linked, &createdAt)
	if err != nil {
		return user, notFound(err)
	}

	if err := json.Unmarshal([]byte(preferences), &user.Preferences); err != nil {
		return user, fmt.Errorf("user %d preferences: %w", user.ID, err)
	}
	if err := json.Unmarshal([]byte(linked), &user.LinkedAccounts); err != nil {
		return user, fmt.Errorf("user %d linked accounts: %w", user.ID, err)
	}
	user.CreatedAt = fromMillis(createdAt)
	return user, nil
}

func (q *Queries) InsertUser(ctx context.Context, user models.User) error {
	preferences, err := json.Marshal(user.Preferences)
	if err != nil {
		return err
	}
	linked, err := json.Marshal(user.LinkedAccounts)
	if err != nil {
		return err
	}

	_, err = q.q.ExecContext(ctx, "INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.Username, user.Email, user.Password, user.Avatar, user.Status, string(preferences), string(linked), millis(user.CreatedAt))
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetUser returns the user with their community list filled in.
func (q *Queries) GetUser(ctx context.Context, userID int64) (models.User, error) {
	user, err := scanUser(q.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", userID))
	if err != nil {
		return user, err
	}

	user.Communities, err = q.UserCommunityIDs(ctx, userID)
	return user, err
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	user, err := scanUser(q.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
	if err != nil {
		return user, err
	}

	user.Communities, err = q.UserCommunityIDs(ctx, user.ID)
	return user, err
}

func (q *Queries) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)", userID).Scan(&exists)
	return exists, err
}

func (q *Queries) GetAuthor(ctx context.Context, userID int64) (models.Author, error) {
	var author models.Author
	err := q.q.QueryRowContext(ctx, "SELECT id, username, avatar, status FROM users WHERE id = ?", userID).
		Scan(&author.ID, &author.Username, &author.Avatar, &author.Status)
	return author, notFound(err)
}

// GetAuthors resolves the given ids, keeping their order. Unknown ids are
// skipped.
func (q *Queries) GetAuthors(ctx context.Context, userIDs []int64) ([]models.Author, error) {
	if len(userIDs) == 0 {
		return []models.Author{}, nil
	}

	rows, err := q.q.QueryContext(ctx, "SELECT id, username, avatar, status FROM users WHERE id IN ("+placeholders(len(userIDs))+")", int64Args(userIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]models.Author, len(userIDs))
	for rows.Next() {
		var author models.Author
		if err := rows.Scan(&author.ID, &author.Username, &author.Avatar, &author.Status); err != nil {
			return nil, err
		}
		byID[author.ID] = author
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	authors := make([]models.Author, 0, len(byID))
	for _, id := range userIDs {
		if author, ok := byID[id]; ok {
			authors = append(authors, author)
		}
	}
	return authors, nil
}

func (q *Queries) UpdateUserStatus(ctx context.Context, userID int64, status models.UserStatus) error {
	return expectOne(q.q.ExecContext(ctx, "UPDATE users SET status = ? WHERE id = ?", status, userID))
}

func (q *Queries) UpdateUserProfile(ctx context.Context, user models.User) error {
	err := expectOne(q.q.ExecContext(ctx, "UPDATE users SET username = ?, avatar = ?, status = ? WHERE id = ?",
		user.Username, user.Avatar, user.Status, user.ID))
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

func (q *Queries) UpdateUserPreferences(ctx context.Context, user models.User) error {
	preferences, err := json.Marshal(user.Preferences)
	if err != nil {
		return err
	}
	linked, err := json.Marshal(user.LinkedAccounts)
	if err != nil {
		return err
	}

	return expectOne(q.q.ExecContext(ctx, "UPDATE users SET preferences = ?, linked_accounts = ? WHERE id = ?",
		string(preferences), string(linked), user.ID))
}

// expectOne reports ErrNotFound when an update or delete matched no row.
// The mysql DSN sets clientFoundRows so unchanged rows still count.
func expectOne(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
