package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const conversationColumns = "id, user_id, mode, recording_type, status, result, error_detail, created_at, updated_at"

// CreateConversation inserts a new conversation in the waiting state.
func (s *Store) CreateConversation(ctx context.Context, userID, mode string, recordingType RecordingType) (*Conversation, error) {
	if !recordingType.Valid() {
		return nil, fmt.Errorf("unknown recording type %q", recordingType)
	}
	id := uuid.NewString()
	now := formatTime(time.Now())

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO conversations (id, user_id, mode, recording_type, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		userID,
		mode,
		string(recordingType),
		ConversationWaiting,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	return s.GetConversation(ctx, id)
}

// GetConversation fetches a conversation by identifier. Returns nil when absent.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// ListConversationsByUser returns a user's conversations ordered by creation time.
func (s *Store) ListConversationsByUser(ctx context.Context, userID string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+conversationColumns+` FROM conversations WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// ClaimForAnalysis atomically transitions a conversation from waiting to
// processing. It reports whether this caller won the transition; callers that
// observe false must not enqueue analysis. This conditional update is the sole
// gate that serializes concurrent completion signals.
func (s *Store) ClaimForAnalysis(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		ConversationProcessing,
		formatTime(time.Now()),
		id,
		ConversationWaiting,
	)
	if err != nil {
		return false, fmt.Errorf("claim conversation for analysis: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// ReleaseAnalysisClaim returns a claimed conversation to waiting. Used only
// when the winner of ClaimForAnalysis cannot enqueue the analysis task, so a
// later aggregation run can claim again.
func (s *Store) ReleaseAnalysisClaim(ctx context.Context, id string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		ConversationWaiting,
		formatTime(time.Now()),
		id,
		ConversationProcessing,
	)
	if err != nil {
		return fmt.Errorf("release analysis claim: %w", err)
	}
	return nil
}

// CompleteAnalysis writes the analysis result and flips the conversation to
// completed, guarded on the processing state so a terminal record is never
// overwritten.
func (s *Store) CompleteAnalysis(ctx context.Context, id, result string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE conversations SET status = ?, result = ?, error_detail = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		ConversationCompleted,
		result,
		formatTime(time.Now()),
		id,
		ConversationProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("complete analysis: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// FailConversation records a terminal failure with a human-readable detail.
// Already-terminal conversations are left untouched.
func (s *Store) FailConversation(ctx context.Context, id, detail string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE conversations SET status = ?, error_detail = ?, result = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		ConversationFailed,
		detail,
		formatTime(time.Now()),
		id,
		ConversationWaiting,
		ConversationProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("fail conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func scanConversation(scanner interface{ Scan(dest ...any) error }) (*Conversation, error) {
	var (
		id            string
		userID        string
		mode          string
		recordingType string
		statusStr     string
		result        sql.NullString
		errorDetail   sql.NullString
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&userID,
		&mode,
		&recordingType,
		&statusStr,
		&result,
		&errorDetail,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	conv := &Conversation{
		ID:            id,
		UserID:        userID,
		Mode:          mode,
		RecordingType: RecordingType(recordingType),
		Status:        ConversationStatus(statusStr),
		Result:        result.String,
		ErrorDetail:   errorDetail.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		conv.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		conv.UpdatedAt = updated
	}
	return conv, nil
}
