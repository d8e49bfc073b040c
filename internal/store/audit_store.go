package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type AuditStore struct {
	db DB
}

type AuditEntry struct {
	ID          string    `db:"id" json:"id"`
	ActorUserID *string   `db:"actor_user_id" json:"-"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	Data        string    `db:"data" json:"data"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// MarshalJSON renders a missing actor as an empty string so clients never
// branch on null.
func (e AuditEntry) MarshalJSON() ([]byte, error) {
	type plain AuditEntry
	var actor string
	if e.ActorUserID != nil {
		actor = *e.ActorUserID
	}
	return json.Marshal(struct {
		plain
		ActorUserID string `json:"actor_user_id"`
	}{plain: plain(e), ActorUserID: actor})
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

// Log writes one row in tx, so an audited change and its log entry commit
// together.
func (s *AuditStore) Log(ctx context.Context, tx Execer, actorID, action, entityType, entityID string, data map[string]string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_user_id, action, entity_type, entity_id, data)
		VALUES (gen_random_uuid()::text, $1, $2, $3, $4, $5)`,
		actorID, action, entityType, entityID, string(payload))
	return err
}

// List pages newest first. An empty entityID lists every entry.
func (s *AuditStore) List(ctx context.Context, entityID string, limit, offset int) ([]AuditEntry, error) {
	query := `SELECT id, actor_user_id, action, entity_type, entity_id, data, created_at FROM audit_logs`
	var args []any
	if entityID != "" {
		args = append(args, entityID)
		query += ` WHERE entity_id = $1`
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows := []AuditEntry{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
