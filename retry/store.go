// Package retry owns durability for forwarding work that could not complete
// synchronously: a sqlite-backed FIFO queue of pending creations and
// resolutions, keyed by channel so a peer-liveness signal can drain exactly
// the channel that came back.
package retry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"

	"github.com/TtheBC01/vector/channel"
)

// ActionType distinguishes the two kinds of queued work.
type ActionType string

const (
	// ActionTransferCreation retries the recipient-leg transfer creation.
	ActionTransferCreation ActionType = "transfer_creation"
	// ActionTransferResolution retries the matching-leg unlock.
	ActionTransferResolution ActionType = "transfer_resolution"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("retry store path must be configured")

// Action is one durable queue entry. Exactly one of the payload fields is
// set, matching the action type.
type Action struct {
	ID                string
	Type              ActionType
	ChannelAddress    common.Address
	CreationPayload   *channel.CreateTransferRequest
	ResolutionPayload *channel.ResolveTransferRequest
	Attempts          int
	Exhausted         bool
	EnqueuedAt        time.Time
}

// Store wraps the retry queue persistence layer.
type Store struct {
	db *sql.DB
}

// Open initialises the backing store using a sqlite-compatible DSN. Tests may
// pass ":memory:".
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if trimmed == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// QueueCreation durably records a transfer creation to retry later.
func (s *Store) QueueCreation(ctx context.Context, channelAddress common.Address, req channel.CreateTransferRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode creation payload: %w", err)
	}
	return s.queue(ctx, channelAddress, ActionTransferCreation, payload)
}

// QueueResolution durably records a transfer resolution to retry later.
func (s *Store) QueueResolution(ctx context.Context, channelAddress common.Address, req channel.ResolveTransferRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode resolution payload: %w", err)
	}
	return s.queue(ctx, channelAddress, ActionTransferResolution, payload)
}

func (s *Store) queue(ctx context.Context, channelAddress common.Address, typ ActionType, payload []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("retry store not configured")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO queued_actions(id, channel_address, action_type, payload, attempts, exhausted, enqueued_at)
        VALUES(?, ?, ?, ?, 0, 0, ?)
    `, uuid.NewString(), channelAddress.Hex(), string(typ), payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert queued action: %w", err)
	}
	return nil
}

// Pending returns the channel's replayable actions, FIFO by enqueue time,
// excluding entries that have exhausted their retry budget.
func (s *Store) Pending(ctx context.Context, channelAddress common.Address) ([]Action, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("retry store not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, channel_address, action_type, payload, attempts, exhausted, enqueued_at
        FROM queued_actions
        WHERE channel_address = ? AND exhausted = 0
        ORDER BY enqueued_at ASC, id ASC
    `, channelAddress.Hex())
	if err != nil {
		return nil, fmt.Errorf("query queued actions: %w", err)
	}
	defer rows.Close()
	return scanActions(rows)
}

// Exhausted returns the channel's entries whose retry budget ran out. They
// stay queryable for operator intervention; the store never drops them.
func (s *Store) Exhausted(ctx context.Context, channelAddress common.Address) ([]Action, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("retry store not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, channel_address, action_type, payload, attempts, exhausted, enqueued_at
        FROM queued_actions
        WHERE channel_address = ? AND exhausted = 1
        ORDER BY enqueued_at ASC, id ASC
    `, channelAddress.Hex())
	if err != nil {
		return nil, fmt.Errorf("query exhausted actions: %w", err)
	}
	defer rows.Close()
	return scanActions(rows)
}

func scanActions(rows *sql.Rows) ([]Action, error) {
	var actions []Action
	for rows.Next() {
		var (
			action    Action
			addr      string
			typ       string
			payload   []byte
			exhausted int
		)
		if err := rows.Scan(&action.ID, &addr, &typ, &payload, &action.Attempts, &exhausted, &action.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scan queued action: %w", err)
		}
		action.ChannelAddress = common.HexToAddress(addr)
		action.Type = ActionType(typ)
		action.Exhausted = exhausted != 0
		switch action.Type {
		case ActionTransferCreation:
			req := &channel.CreateTransferRequest{}
			if err := json.Unmarshal(payload, req); err != nil {
				return nil, fmt.Errorf("decode creation payload: %w", err)
			}
			action.CreationPayload = req
		case ActionTransferResolution:
			req := &channel.ResolveTransferRequest{}
			if err := json.Unmarshal(payload, req); err != nil {
				return nil, fmt.Errorf("decode resolution payload: %w", err)
			}
			action.ResolutionPayload = req
		default:
			return nil, fmt.Errorf("unknown action type %q", typ)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queued actions: %w", err)
	}
	return actions, nil
}

// Remove deletes a replayed action. Removing an id that is already gone is
// not an error, so a drain racing an earlier drain cannot re-commit work.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("retry store not configured")
	}
	result, err := s.db.ExecContext(ctx, `
        DELETE FROM queued_actions WHERE id = ?
    `, id)
	if err != nil {
		return false, fmt.Errorf("delete queued action: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RecordFailure increments the action's attempt counter and marks it
// exhausted once the counter reaches maxAttempts. Returns the updated
// counter and whether the action is now exhausted.
func (s *Store) RecordFailure(ctx context.Context, id string, maxAttempts int) (int, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, fmt.Errorf("retry store not configured")
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	var attempts int
	if err := tx.QueryRowContext(ctx, `
        SELECT attempts FROM queued_actions WHERE id = ?
    `, id).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, fmt.Errorf("queued action %s not found", id)
		}
		return 0, false, fmt.Errorf("query attempts: %w", err)
	}
	attempts++
	exhausted := attempts >= maxAttempts
	exhaustedFlag := 0
	if exhausted {
		exhaustedFlag = 1
	}
	if _, err := tx.ExecContext(ctx, `
        UPDATE queued_actions SET attempts = ?, exhausted = ? WHERE id = ?
    `, attempts, exhaustedFlag, id); err != nil {
		return 0, false, fmt.Errorf("update attempts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit failure record: %w", err)
	}
	return attempts, exhausted, nil
}

// Depth returns the number of non-exhausted entries across all channels.
func (s *Store) Depth(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("retry store not configured")
	}
	var depth int
	if err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM queued_actions WHERE exhausted = 0
    `).Scan(&depth); err != nil {
		return 0, fmt.Errorf("query queue depth: %w", err)
	}
	return depth, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS queued_actions (
    id TEXT PRIMARY KEY,
    channel_address TEXT NOT NULL,
    action_type TEXT NOT NULL,
    payload BLOB NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    exhausted INTEGER NOT NULL DEFAULT 0,
    enqueued_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queued_actions_channel ON queued_actions(channel_address, exhausted, enqueued_at);
`
