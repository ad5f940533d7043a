package database

import (
	"context"
	"database/sql"
	"time"

	"converse-backend/internal/models"
)

const meetingSelect = `
	SELECT mt.id, mt.community_id, mt.channel_id, mt.title, mt.description, mt.start_time, mt.end_time,
		mt.reminder, mt.status, mt.meeting_link, mt.created_at, mt.updated_at,
		u.id, u.username, u.avatar, u.status
	FROM meetings mt
	JOIN users u ON u.id = mt.organizer_id`

func scanMeeting(row interface{ Scan(...any) error }) (models.Meeting, error) {
	var (
		meeting   models.Meeting
		channelID sql.NullInt64
		endTime   sql.NullInt64
		startTime int64
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&meeting.ID, &meeting.CommunityID, &channelID, &meeting.Title, &meeting.Description, &startTime, &endTime,
		&meeting.Reminder, &meeting.Status, &meeting.MeetingLink, &createdAt, &updatedAt,
		&meeting.Organizer.ID, &meeting.Organizer.Username, &meeting.Organizer.Avatar, &meeting.Organizer.Status)
	if err != nil {
		return meeting, notFound(err)
	}

	if channelID.Valid {
		meeting.ChannelID = channelID.Int64
	}
	if endTime.Valid {
		end := fromMillis(endTime.Int64)
		meeting.EndTime = &end
	}
	meeting.StartTime = fromMillis(startTime)
	meeting.CreatedAt = fromMillis(createdAt)
	meeting.UpdatedAt = fromMillis(updatedAt)
	return meeting, nil
}

func (q *Queries) InsertMeeting(ctx context.Context, meeting models.Meeting) error {
	var channelID, endTime sql.NullInt64
	if meeting.ChannelID != 0 {
		channelID = sql.NullInt64{Int64: meeting.ChannelID, Valid: true}
	}
	if meeting.EndTime != nil {
		endTime = sql.NullInt64{Int64: millis(*meeting.EndTime), Valid: true}
	}

	_, err := q.q.ExecContext(ctx, `INSERT INTO meetings
		(id, community_id, channel_id, organizer_id, title, description, start_time, end_time, reminder, status, meeting_link, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meeting.ID, meeting.CommunityID, channelID, meeting.Organizer.ID, meeting.Title, meeting.Description,
		millis(meeting.StartTime), endTime, meeting.Reminder, meeting.Status, meeting.MeetingLink,
		millis(meeting.CreatedAt), millis(meeting.UpdatedAt))
	return err
}

func (q *Queries) GetMeeting(ctx context.Context, meetingID int64) (models.Meeting, error) {
	meeting, err := scanMeeting(q.q.QueryRowContext(ctx, meetingSelect+" WHERE mt.id = ?", meetingID))
	if err != nil {
		return meeting, err
	}

	meeting.Participants, err = q.ParticipantIDs(ctx, meetingID)
	return meeting, err
}

// ListMeetings returns the community's meetings in one of the given states,
// earliest start first.
func (q *Queries) ListMeetings(ctx context.Context, communityID int64, statuses ...models.MeetingStatus) ([]models.Meeting, error) {
	args := []any{communityID}
	query := meetingSelect + " WHERE mt.community_id = ?"
	if len(statuses) > 0 {
		query += " AND mt.status IN (" + placeholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += " ORDER BY mt.start_time, mt.id"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	meetings := []models.Meeting{}
	for rows.Next() {
		meeting, err := scanMeeting(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		meetings = append(meetings, meeting)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range meetings {
		meetings[i].Participants, err = q.ParticipantIDs(ctx, meetings[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return meetings, nil
}

func (q *Queries) ParticipantIDs(ctx context.Context, meetingID int64) (models.IDList, error) {
	return q.ids(ctx, "SELECT user_id FROM meeting_participants WHERE meeting_id = ? ORDER BY joined_at, user_id", meetingID)
}

// AddParticipant returns ErrDuplicate when userID already joined.
func (q *Queries) AddParticipant(ctx context.Context, meetingID int64, userID int64, joinedAt time.Time) error {
	_, err := q.q.ExecContext(ctx, "INSERT INTO meeting_participants (meeting_id, user_id, joined_at) VALUES (?, ?, ?)", meetingID, userID, millis(joinedAt))
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

func (q *Queries) UpdateMeetingStatus(ctx context.Context, meetingID int64, status models.MeetingStatus, updatedAt time.Time) error {
	return expectOne(q.q.ExecContext(ctx, "UPDATE meetings SET status = ?, updated_at = ? WHERE id = ?", status, millis(updatedAt), meetingID))
}

func (q *Queries) DeleteMeeting(ctx context.Context, meetingID int64) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM meeting_participants WHERE meeting_id = ?", meetingID); err != nil {
		return err
	}
	return expectOne(q.q.ExecContext(ctx, "DELETE FROM meetings WHERE id = ?", meetingID))
}
