package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const audioPartColumns = "id, conversation_id, slot_key, status, transcript, error_detail, blob_ref, created_at, updated_at"

// CreateAudioPart inserts a new uploaded audio part. The (conversation, slot)
// uniqueness constraint is enforced by the schema.
func (s *Store) CreateAudioPart(ctx context.Context, conversationID, slotKey, blobRef string) (*AudioPart, error) {
	id := uuid.NewString()
	now := formatTime(time.Now())

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO audio_parts (id, conversation_id, slot_key, status, blob_ref, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		conversationID,
		slotKey,
		PartUploaded,
		nullableString(blobRef),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audio part: %w", err)
	}

	return s.GetAudioPart(ctx, id)
}

// GetAudioPart fetches an audio part by identifier. Returns nil when absent.
func (s *Store) GetAudioPart(ctx context.Context, id string) (*AudioPart, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+audioPartColumns+` FROM audio_parts WHERE id = ?`, id)
	part, err := scanAudioPart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audio part: %w", err)
	}
	return part, nil
}

// AudioPartsByConversation returns a conversation's parts in creation order.
func (s *Store) AudioPartsByConversation(ctx context.Context, conversationID string) ([]*AudioPart, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+audioPartColumns+` FROM audio_parts WHERE conversation_id = ? ORDER BY created_at, slot_key`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audio parts: %w", err)
	}
	defer rows.Close()

	var parts []*AudioPart
	for rows.Next() {
		part, err := scanAudioPart(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, rows.Err()
}

// CountTranscribed returns how many of a conversation's parts hold transcripts.
func (s *Store) CountTranscribed(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM audio_parts WHERE conversation_id = ? AND status = ?`,
		conversationID,
		PartTranscribed,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transcribed parts: %w", err)
	}
	return count, nil
}

// MarkPartProcessing transitions a part to processing. Uploaded parts and
// previously failed parts (redelivered after a transient error) are eligible;
// terminal transcribed parts are not.
func (s *Store) MarkPartProcessing(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE audio_parts SET status = ?, error_detail = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?, ?)`,
		PartProcessing,
		formatTime(time.Now()),
		id,
		PartUploaded,
		PartProcessing,
		PartFailed,
	)
	if err != nil {
		return false, fmt.Errorf("mark part processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// SetPartTranscribed stores the transcript and flips the part to transcribed.
func (s *Store) SetPartTranscribed(ctx context.Context, id, transcript string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE audio_parts SET status = ?, transcript = ?, error_detail = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		PartTranscribed,
		transcript,
		formatTime(time.Now()),
		id,
		PartProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("set part transcribed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// FailPart records a failure detail against a part. Transcribed parts are
// never downgraded.
func (s *Store) FailPart(ctx context.Context, id, detail string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE audio_parts SET status = ?, error_detail = ?, updated_at = ?
         WHERE id = ? AND status != ?`,
		PartFailed,
		detail,
		formatTime(time.Now()),
		id,
		PartTranscribed,
	)
	if err != nil {
		return false, fmt.Errorf("fail part: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// ClearPartBlobRef drops the blob reference after the source bytes are deleted.
func (s *Store) ClearPartBlobRef(ctx context.Context, id string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE audio_parts SET blob_ref = NULL, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("clear part blob ref: %w", err)
	}
	return nil
}

// BlobRefInUse reports whether any audio part still references the blob.
func (s *Store) BlobRefInUse(ctx context.Context, blobRef string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM audio_parts WHERE blob_ref = ?`,
		blobRef,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check blob reference: %w", err)
	}
	return count > 0, nil
}

func scanAudioPart(scanner interface{ Scan(dest ...any) error }) (*AudioPart, error) {
	var (
		id             string
		conversationID string
		slotKey        string
		statusStr      string
		transcript     sql.NullString
		errorDetail    sql.NullString
		blobRef        sql.NullString
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&id,
		&conversationID,
		&slotKey,
		&statusStr,
		&transcript,
		&errorDetail,
		&blobRef,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	part := &AudioPart{
		ID:             id,
		ConversationID: conversationID,
		SlotKey:        slotKey,
		Status:         PartStatus(statusStr),
		Transcript:     transcript.String,
		ErrorDetail:    errorDetail.String,
		BlobRef:        blobRef.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		part.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		part.UpdatedAt = updated
	}
	return part, nil
}
