// Package activity keeps a local history of wallet actions and their transactions.
package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// tsLayout 定长时间格式，保证按字符串排序即按时间排序
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("activity not found")

// Entry 一次动作的执行记录（链上状态以合约为准，这里只是本地历史）
type Entry struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	TxHashes  []string  `json:"txHashes"`
	TokenID   string    `json:"tokenId,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store sqlite 存储
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库，path 可以是 ":memory:"
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("activity db path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open activity db: %w", err)
	}
	// sqlite 单写者；:memory: 时也保证只有一个连接
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS activity (
  id TEXT PRIMARY KEY,
  account TEXT NOT NULL,
  action TEXT NOT NULL,
  status TEXT NOT NULL,
  tx_hashes TEXT NOT NULL DEFAULT '[]',
  token_id TEXT,
  message TEXT,
  error TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_activity_account_created ON activity(account, created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate activity db: %w", err)
		}
	}
	return nil
}

// Record 按 ID 插入或更新
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("activity id is required")
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	hashes := e.TxHashes
	if hashes == nil {
		hashes = []string{}
	}
	raw, err := json.Marshal(hashes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO activity (id, account, action, status, tx_hashes, token_id, message, error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  status = excluded.status,
  tx_hashes = excluded.tx_hashes,
  token_id = excluded.token_id,
  message = excluded.message,
  error = excluded.error,
  updated_at = excluded.updated_at`,
		e.ID, strings.ToLower(e.Account), e.Action, e.Status, string(raw),
		nullString(e.TokenID), nullString(e.Message), nullString(e.Error),
		e.CreatedAt.UTC().Format(tsLayout), e.UpdatedAt.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("record activity %s: %w", e.ID, err)
	}
	return nil
}

// List 按时间倒序返回账户的记录；account 为空时返回全部
func (s *Store) List(ctx context.Context, account string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id, account, action, status, tx_hashes, token_id, message, error, created_at, updated_at FROM activity`
	args := []interface{}{}
	if account != "" {
		q += ` WHERE account = ?`
		args = append(args, strings.ToLower(account))
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, account, action, status, tx_hashes, token_id, message, error, created_at, updated_at FROM activity WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(sc scanner) (*Entry, error) {
	var (
		e                      Entry
		hashes                 string
		tokenID, message, errS sql.NullString
		createdAt, updatedAt   string
	)
	if err := sc.Scan(&e.ID, &e.Account, &e.Action, &e.Status, &hashes, &tokenID, &message, &errS, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(hashes), &e.TxHashes); err != nil {
		return nil, fmt.Errorf("decode tx hashes for %s: %w", e.ID, err)
	}
	e.TokenID, e.Message, e.Error = tokenID.String, message.String, errS.String
	e.CreatedAt, _ = time.Parse(tsLayout, createdAt)
	e.UpdatedAt, _ = time.Parse(tsLayout, updatedAt)
	return &e, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
