package repo

import (
	"context"
	"time"

	"voice-briefing/internal/domain"
	"voice-briefing/internal/infra/metrics"
)

// AppendChat реализует domain.ConversationLog.
func (p *Postgres) AppendChat(ctx context.Context, e domain.ChatEntry) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO chat_logs (id, session_id, role, content, intent, created_at)
VALUES ($1,$2,$3,$4,NULLIF($5,''),$6)
`, e.ID, e.SessionID, string(e.Role), e.Content, string(e.Intent), e.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "chat_insert", "chat_logs", start, err)
	return err
}

// RecentChat возвращает последние записи журнала в хронологическом порядке.
func (p *Postgres) RecentChat(ctx context.Context, sessionID string, limit int) ([]domain.ChatEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, session_id, role, content, COALESCE(intent,''), created_at FROM (
  SELECT * FROM chat_logs WHERE session_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2
) recent ORDER BY created_at ASC, id ASC
`, sessionID, limit)
	metrics.ObserveNetworkRequest("postgres", "chat_recent", "chat_logs", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ChatEntry
	for rows.Next() {
		var (
			e            domain.ChatEntry
			role, intent string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &role, &e.Content, &intent, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Role = domain.ChatRole(role)
		e.Intent = domain.Intent(intent)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
