package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mindgate/intake/store"
)

var sessionFields = []string{
	"id", "owner_id", "current_instrument", "completed_instruments",
	"collected_answers", "structured_answers", "presented_instruments",
	"insights", "is_complete", "started_ts", "last_activity_ts", "completed_ts",
}

func (d *DB) CreateSession(ctx context.Context, create *store.Session) (*store.Session, error) {
	completed, collected, structured, presented, err := store.EncodeSessionFields(create)
	if err != nil {
		return nil, err
	}

	args := []any{
		create.ID, create.OwnerID, create.CurrentInstrument, completed,
		collected, structured, presented,
		create.Insights, create.IsComplete, create.StartedTs, create.LastActivityTs, create.CompletedTs,
	}
	stmt := `INSERT INTO session (` + strings.Join(sessionFields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return create, nil
}

func (d *DB) ListSessions(ctx context.Context, find *store.FindSession) ([]*store.Session, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "owner_id = "+placeholder(len(args)+1)), append(args, *find.OwnerID)
	}
	if find.IsComplete != nil {
		where, args = append(where, "is_complete = "+placeholder(len(args)+1)), append(args, *find.IsComplete)
	}
	if find.LastActivityBefore != nil {
		where, args = append(where, "last_activity_ts < "+placeholder(len(args)+1)), append(args, *find.LastActivityBefore)
	}

	query := `SELECT ` + strings.Join(sessionFields, ", ") + ` FROM session WHERE ` + strings.Join(where, " AND ") + ` ORDER BY last_activity_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateSession(ctx context.Context, update *store.UpdateSession) (*store.Session, error) {
	set, args := []string{}, []any{}

	if update.OwnerID != nil {
		set, args = append(set, "owner_id = "+placeholder(len(args)+1)), append(args, *update.OwnerID)
	}
	if update.CurrentInstrument != nil {
		set, args = append(set, "current_instrument = "+placeholder(len(args)+1)), append(args, *update.CurrentInstrument)
	}
	if update.CompletedInstruments != nil {
		encoded, err := encodeField(*update.CompletedInstruments)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "completed_instruments = "+placeholder(len(args)+1)), append(args, encoded)
	}
	if update.CollectedAnswers != nil {
		encoded, err := encodeField(*update.CollectedAnswers)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "collected_answers = "+placeholder(len(args)+1)), append(args, encoded)
	}
	if update.StructuredAnswers != nil {
		encoded, err := encodeField(*update.StructuredAnswers)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "structured_answers = "+placeholder(len(args)+1)), append(args, encoded)
	}
	if update.PresentedInstruments != nil {
		encoded, err := encodeField(*update.PresentedInstruments)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "presented_instruments = "+placeholder(len(args)+1)), append(args, encoded)
	}
	if update.Insights != nil {
		set, args = append(set, "insights = "+placeholder(len(args)+1)), append(args, *update.Insights)
	}
	if update.IsComplete != nil {
		set, args = append(set, "is_complete = "+placeholder(len(args)+1)), append(args, *update.IsComplete)
	}
	if update.LastActivityTs != nil {
		set, args = append(set, "last_activity_ts = "+placeholder(len(args)+1)), append(args, *update.LastActivityTs)
	}
	if update.CompletedTs != nil {
		set, args = append(set, "completed_ts = "+placeholder(len(args)+1)), append(args, *update.CompletedTs)
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE session SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("session not found")
	}

	query := `SELECT ` + strings.Join(sessionFields, ", ") + ` FROM session WHERE id = ` + placeholder(1)
	session, err := scanSession(d.db.QueryRowContext(ctx, query, update.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to read updated session: %w", err)
	}

	return session, nil
}

func (d *DB) DeleteSession(ctx context.Context, delete *store.DeleteSession) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM message WHERE session_id = `+placeholder(1), delete.ID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	result, err := d.db.ExecContext(ctx, `DELETE FROM session WHERE id = `+placeholder(1), delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("session not found")
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*store.Session, error) {
	session := &store.Session{}
	var ownerID sql.NullString
	var completed, collected, structured, presented string
	if err := row.Scan(
		&session.ID, &ownerID, &session.CurrentInstrument, &completed,
		&collected, &structured, &presented,
		&session.Insights, &session.IsComplete, &session.StartedTs, &session.LastActivityTs, &session.CompletedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	if ownerID.Valid {
		session.OwnerID = &ownerID.String
	}
	if err := store.DecodeSessionFields(session, completed, collected, structured, presented); err != nil {
		return nil, err
	}
	return session, nil
}
