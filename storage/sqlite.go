package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/keys-api/interfaces"
	_ "modernc.org/sqlite"
)

// pubkeyChunkSize bounds the number of bound parameters per IN clause.
const pubkeyChunkSize = 500

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS registry_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	keys_op_index INTEGER NOT NULL,
	block_number INTEGER NOT NULL,
	block_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS registry_operator (
	idx INTEGER PRIMARY KEY,
	active INTEGER NOT NULL,
	name TEXT NOT NULL,
	reward_address TEXT NOT NULL,
	staking_limit INTEGER NOT NULL,
	stopped_validators INTEGER NOT NULL,
	total_signing_keys INTEGER NOT NULL,
	used_signing_keys INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS registry_key (
	operator_index INTEGER NOT NULL,
	idx INTEGER NOT NULL,
	key BLOB NOT NULL,
	deposit_signature BLOB NOT NULL,
	used INTEGER NOT NULL,
	PRIMARY KEY (operator_index, idx)
);
CREATE INDEX IF NOT EXISTS idx_registry_key_key ON registry_key(key);
`

// SQLiteStore reads the registry tables from a SQLite database shared with the updater.
type SQLiteStore struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path in WAL mode and
// ensures the registry schema exists.
func NewSQLiteStore(path string, log *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		path: path,
		log:  log,
	}, nil
}

// View runs fn inside one read transaction. SQLite pins the WAL snapshot at the
// first read of the transaction, so a concurrent ReplaceSnapshot is either fully
// visible or not visible at all.
func (s *SQLiteStore) View(ctx context.Context, fn func(interfaces.RegistryView) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	return fn(&sqliteView{tx: tx})
}

// ReplaceSnapshot atomically replaces all registry rows. A nil Meta clears the
// meta row, returning the store to the not-ready state.
func (s *SQLiteStore) ReplaceSnapshot(ctx context.Context, snapshot *interfaces.Snapshot) error {
	if snapshot == nil {
		return errors.New("nil snapshot")
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM registry_key",
		"DELETE FROM registry_operator",
		"DELETE FROM registry_meta",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear registry: %w", err)
		}
	}

	opStmt, err := tx.PrepareContext(ctx, `INSERT INTO registry_operator
		(idx, active, name, reward_address, staking_limit, stopped_validators, total_signing_keys, used_signing_keys)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer opStmt.Close()

	for _, op := range snapshot.Operators {
		if _, err := opStmt.ExecContext(ctx, int64(op.Index), op.Active, op.Name, op.RewardAddress.Hex(),
			int64(op.StakingLimit), int64(op.StoppedValidators), int64(op.TotalSigningKeys), int64(op.UsedSigningKeys)); err != nil {
			return fmt.Errorf("failed to insert operator %d: %w", op.Index, err)
		}
	}

	keyStmt, err := tx.PrepareContext(ctx, `INSERT INTO registry_key
		(operator_index, idx, key, deposit_signature, used) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer keyStmt.Close()

	for _, key := range snapshot.Keys {
		if _, err := keyStmt.ExecContext(ctx, int64(key.OperatorIndex), int64(key.Index),
			[]byte(key.Key), []byte(key.DepositSignature), key.Used); err != nil {
			return fmt.Errorf("failed to insert key %d/%d: %w", key.OperatorIndex, key.Index, err)
		}
	}

	if snapshot.Meta != nil {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO registry_meta (id, keys_op_index, block_number, block_hash) VALUES (1, ?, ?, ?)",
			int64(snapshot.Meta.KeysOpIndex), int64(snapshot.Meta.BlockNumber), snapshot.Meta.BlockHash.Hex()); err != nil {
			return fmt.Errorf("failed to write meta: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.log.Debug("Replaced registry snapshot",
		slog.String("path", s.path),
		slog.Int("keys", len(snapshot.Keys)),
		slog.Int("operators", len(snapshot.Operators)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (s *SQLiteStore) Name() string {
	return fmt.Sprintf("sqlite-%s", filepath.Base(s.path))
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteView struct {
	tx *sql.Tx
}

func (v *sqliteView) Meta(ctx context.Context) (*interfaces.SyncMeta, error) {
	var (
		meta      interfaces.SyncMeta
		blockHash string
	)
	err := v.tx.QueryRowContext(ctx,
		"SELECT keys_op_index, block_number, block_hash FROM registry_meta WHERE id = 1",
	).Scan(&meta.KeysOpIndex, &meta.BlockNumber, &blockHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read meta: %w", err)
	}
	meta.BlockHash = common.HexToHash(blockHash)
	return &meta, nil
}

func (v *sqliteView) Keys(ctx context.Context, filter interfaces.KeyFilter) ([]interfaces.RegistryKey, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Used != nil {
		conds = append(conds, "used = ?")
		args = append(args, *filter.Used)
	}
	if filter.OperatorIndex != nil {
		conds = append(conds, "operator_index = ?")
		args = append(args, int64(*filter.OperatorIndex))
	}

	if filter.Pubkeys == nil {
		return v.queryKeys(ctx, conds, args)
	}

	pubkeys := uniquePubkeys(filter.Pubkeys)
	res := []interfaces.RegistryKey{}
	for start := 0; start < len(pubkeys); start += pubkeyChunkSize {
		end := min(start+pubkeyChunkSize, len(pubkeys))
		chunk := pubkeys[start:end]

		chunkArgs := append([]any{}, args...)
		for _, pk := range chunk {
			chunkArgs = append(chunkArgs, pk)
		}
		chunkConds := append(append([]string{}, conds...),
			"key IN ("+strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")+")")

		keys, err := v.queryKeys(ctx, chunkConds, chunkArgs)
		if err != nil {
			return nil, err
		}
		res = append(res, keys...)
	}

	if len(pubkeys) > pubkeyChunkSize {
		sort.SliceStable(res, func(i, j int) bool {
			if res[i].OperatorIndex != res[j].OperatorIndex {
				return res[i].OperatorIndex < res[j].OperatorIndex
			}
			return res[i].Index < res[j].Index
		})
	}
	return res, nil
}

// uniquePubkeys drops repeated pubkeys so that a key matched from two chunks
// is returned once.
func uniquePubkeys(pubkeys [][]byte) [][]byte {
	seen := make(map[string]struct{}, len(pubkeys))
	res := make([][]byte, 0, len(pubkeys))
	for _, pk := range pubkeys {
		if _, ok := seen[string(pk)]; ok {
			continue
		}
		seen[string(pk)] = struct{}{}
		res = append(res, pk)
	}
	return res
}

func (v *sqliteView) queryKeys(ctx context.Context, conds []string, args []any) ([]interfaces.RegistryKey, error) {
	query := "SELECT operator_index, idx, key, deposit_signature, used FROM registry_key"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY operator_index, idx"

	rows, err := v.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close()

	res := []interfaces.RegistryKey{}
	for rows.Next() {
		var (
			key       interfaces.RegistryKey
			pubkey    []byte
			signature []byte
		)
		if err := rows.Scan(&key.OperatorIndex, &key.Index, &pubkey, &signature, &key.Used); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		key.Key = pubkey
		key.DepositSignature = signature
		res = append(res, key)
	}
	return res, rows.Err()
}

const operatorColumns = "idx, active, name, reward_address, staking_limit, stopped_validators, total_signing_keys, used_signing_keys"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperator(row rowScanner) (interfaces.RegistryOperator, error) {
	var (
		op            interfaces.RegistryOperator
		rewardAddress string
	)
	err := row.Scan(&op.Index, &op.Active, &op.Name, &rewardAddress,
		&op.StakingLimit, &op.StoppedValidators, &op.TotalSigningKeys, &op.UsedSigningKeys)
	if err != nil {
		return op, err
	}
	op.RewardAddress = common.HexToAddress(rewardAddress)
	return op, nil
}

func (v *sqliteView) Operators(ctx context.Context) ([]interfaces.RegistryOperator, error) {
	rows, err := v.tx.QueryContext(ctx, "SELECT "+operatorColumns+" FROM registry_operator ORDER BY idx")
	if err != nil {
		return nil, fmt.Errorf("failed to query operators: %w", err)
	}
	defer rows.Close()

	res := []interfaces.RegistryOperator{}
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operator: %w", err)
		}
		res = append(res, op)
	}
	return res, rows.Err()
}

func (v *sqliteView) Operator(ctx context.Context, index uint64) (*interfaces.RegistryOperator, error) {
	op, err := scanOperator(v.tx.QueryRowContext(ctx,
		"SELECT "+operatorColumns+" FROM registry_operator WHERE idx = ?", int64(index)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read operator %d: %w", index, err)
	}
	return &op, nil
}
