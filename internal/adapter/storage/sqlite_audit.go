package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id        INTEGER PRIMARY KEY,
	user_id   INTEGER NOT NULL,
	day       TEXT    NOT NULL,
	at        INTEGER NOT NULL,
	role      TEXT    NOT NULL,
	direction TEXT    NOT NULL,
	text      TEXT    NOT NULL DEFAULT '',
	photo     TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_log_stream ON audit_log (user_id, day, id);
`

var auditPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

// SQLiteAuditLog stores every user's message log in a local SQLite file.
// A stream is the set of rows sharing (user_id, day); rows are only ever appended.
type SQLiteAuditLog struct {
	pool *sqlitex.Pool
	path string
	log  *slog.Logger
}

// OpenSQLiteAuditLog opens or creates the audit database at path. The parent
// directory must exist.
func OpenSQLiteAuditLog(path string, poolSize int, log *slog.Logger) (*SQLiteAuditLog, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log: path is required")
	}
	if poolSize <= 0 {
		poolSize = 4
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareAuditConn,
	})
	if err != nil {
		return nil, fmt.Errorf("audit log: opening %s: %w", path, err)
	}
	log.Info("audit log opened", "path", path, "pool_size", poolSize)

	return &SQLiteAuditLog{pool: pool, path: path, log: log}, nil
}

func prepareAuditConn(conn *sqlite.Conn) error {
	for _, pragma := range auditPragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("audit log: %s: %w", pragma, err)
		}
	}
	return sqlitex.ExecuteScript(conn, auditSchema, nil)
}

func (a *SQLiteAuditLog) Append(ctx context.Context, e domain.AuditEntry) error {
	conn, err := a.pool.Take(ctx)
	if err != nil {
		return domain.StorageFailure("audit take", err)
	}
	defer a.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO audit_log (user_id, day, at, role, direction, text, photo)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{e.UserID, e.Day(), e.At.UnixNano(), e.Role, e.Direction, e.Text, e.Photo},
		})
	if err != nil {
		return domain.StorageFailure("audit append", err)
	}
	return nil
}

func (a *SQLiteAuditLog) Entries(ctx context.Context, userID int64, day string) ([]domain.AuditEntry, error) {
	conn, err := a.pool.Take(ctx)
	if err != nil {
		return nil, domain.StorageFailure("audit take", err)
	}
	defer a.pool.Put(conn)

	var out []domain.AuditEntry
	err = sqlitex.Execute(conn, `
		SELECT at, role, direction, text, photo FROM audit_log
		WHERE user_id = ? AND day = ?
		ORDER BY id`,
		&sqlitex.ExecOptions{
			Args: []any{userID, day},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, domain.AuditEntry{
					UserID:    userID,
					At:        time.Unix(0, stmt.ColumnInt64(0)),
					Role:      stmt.ColumnText(1),
					Direction: stmt.ColumnText(2),
					Text:      stmt.ColumnText(3),
					Photo:     stmt.ColumnText(4),
				})
				return nil
			},
		})
	if err != nil {
		return nil, domain.StorageFailure("audit entries", err)
	}
	return out, nil
}

func (a *SQLiteAuditLog) Close() error {
	if err := a.pool.Close(); err != nil {
		a.log.Error("audit log close error", "path", a.path, "err", err)
		return fmt.Errorf("audit log: closing %s: %w", a.path, err)
	}
	return nil
}
