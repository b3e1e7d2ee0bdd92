package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vhoststream/core/internal/metrics"
)

// ArchiveComment appends a [metrics.CommentEvent] to the comment_events
// table.
func (s *Store) ArchiveComment(ctx context.Context, e metrics.CommentEvent) error {
	const q = `
		INSERT INTO comment_events (session_id, author, text, intent, timestamp)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.pool.Exec(ctx, q, s.sessionID, e.Author, e.Text, e.Intent, e.Timestamp); err != nil {
		return fmt.Errorf("archive: archive comment: %w", err)
	}
	return nil
}

// ArchiveSpeak appends a [metrics.SpeakEvent] to the speak_events table.
func (s *Store) ArchiveSpeak(ctx context.Context, e metrics.SpeakEvent) error {
	const q = `
		INSERT INTO speak_events (session_id, text, intent, phase, viewer_count, priority, reason, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := s.pool.Exec(ctx, q, s.sessionID, e.Text, e.Intent, e.Phase, e.ViewerCount, e.Priority, e.Reason, e.Timestamp); err != nil {
		return fmt.Errorf("archive: archive speak: %w", err)
	}
	return nil
}

// RecentSpeaks returns every speak event archived for the store's session
// within the last duration, ordered chronologically (oldest first).
func (s *Store) RecentSpeaks(ctx context.Context, since time.Duration) ([]metrics.SpeakEvent, error) {
	const q = `
		SELECT text, intent, phase, viewer_count, priority, reason, timestamp
		FROM   speak_events
		WHERE  session_id = $1
		  AND  timestamp  >= now() - ($2::bigint * interval '1 microsecond')
		ORDER  BY timestamp`

	rows, err := s.pool.Query(ctx, q, s.sessionID, since.Microseconds())
	if err != nil {
		return nil, fmt.Errorf("archive: recent speaks: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (metrics.SpeakEvent, error) {
		var e metrics.SpeakEvent
		if err := row.Scan(&e.Text, &e.Intent, &e.Phase, &e.ViewerCount, &e.Priority, &e.Reason, &e.Timestamp); err != nil {
			return metrics.SpeakEvent{}, err
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan speak rows: %w", err)
	}
	if events == nil {
		events = []metrics.SpeakEvent{}
	}
	return events, nil
}
