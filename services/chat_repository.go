package services

import (
	"context"
	"database/sql"
	"fmt"
)

// ChatRepository implements ConversationStore on the appchat database
type ChatRepository struct {
	PG *sql.DB
}

func NewChatRepository(pg *sql.DB) *ChatRepository {
	return &ChatRepository{PG: pg}
}

var _ ConversationStore = (*ChatRepository)(nil)

// HasChats reports whether userID owns at least one chat
func (r *ChatRepository) HasChats(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.PG.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM chats WHERE user_id = $1)
	`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check chats: %w", err)
	}
	return exists, nil
}

// ReassignAll drops tags of every chat owned by from and hands the chats to to.
// Tags are conversation-scoped and considered invalid once ownership changes.
func (r *ChatRepository) ReassignAll(ctx context.Context, from, to string) (int64, error) {
	return r.reassign(ctx,
		`DELETE FROM chats_tags WHERE chat_id IN (SELECT id FROM chats WHERE user_id = $1)`,
		`UPDATE chats SET user_id = $2 WHERE user_id = $1`,
		from, to)
}

// ReassignSector is ReassignAll restricted to chats whose subject is sectorCode
func (r *ChatRepository) ReassignSector(ctx context.Context, from, to, sectorCode string) (int64, error) {
	return r.reassign(ctx,
		`DELETE FROM chats_tags WHERE chat_id IN (SELECT id FROM chats WHERE user_id = $1 AND subject = $2)`,
		`UPDATE chats SET user_id = $3 WHERE user_id = $1 AND subject = $2`,
		from, sectorCode, to)
}

func (r *ChatRepository) reassign(ctx context.Context, purgeTags, moveChats string, args ...interface{}) (int64, error) {
	tx, err := r.PG.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin reassignment: %w", err)
	}
	defer tx.Rollback()

	// The tag purge only binds the ownership filter, never the new owner
	if _, err := tx.ExecContext(ctx, purgeTags, args[:len(args)-1]...); err != nil {
		return 0, fmt.Errorf("failed to purge chat tags: %w", err)
	}

	res, err := tx.ExecContext(ctx, moveChats, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign chats: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to reassign chats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reassignment: %w", err)
	}
	return affected, nil
}
