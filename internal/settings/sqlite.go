package settings

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sweeney/pump-controller/internal/errors"
	"github.com/sweeney/pump-controller/internal/logger"
)

const defaultDirPerm = 0o755

// SQLiteStore keeps settings in a single-table SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenSQLite opens (creating if needed) the settings database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	errFactory := errors.New()

	if path == "" {
		return nil, errFactory.WithMessage(errors.ErrStorageInit, "empty database path")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
			return nil, errFactory.WithData(errors.ErrStorageInit, struct {
				Phase string
				Path  string
				Error string
			}{
				Phase: "create_directory",
				Path:  dir,
				Error: err.Error(),
			})
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, errFactory.WithData(errors.ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	// The pump-settings CLI may write the same file; keep one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, errFactory.WithData(errors.ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "create_table",
			Error: err.Error(),
		})
	}

	logger.Debug().Str("path", path).Msg("Settings database opened")

	return &SQLiteStore{db: db, path: path}, nil
}

// Load returns the stored value for key, or def if absent.
func (s *SQLiteStore) Load(key string, def float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value float64
	err := s.db.QueryRow(selectValueSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, errors.New().Wrap(errors.ErrStorageAccess, err)
	}
	return value, nil
}

// Save upserts key.
func (s *SQLiteStore) Save(key string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(upsertSQL, key, value); err != nil {
		return errors.New().Wrap(errors.ErrStorageAccess, err)
	}
	return nil
}

// All returns every setting ordered by key.
func (s *SQLiteStore) All() ([]Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(selectAllSQL)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrStorageAccess, err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var st Setting
		if err := rows.Scan(&st.Key, &st.Value); err != nil {
			return nil, errors.New().Wrap(errors.ErrStorageAccess, err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New().Wrap(errors.ErrStorageAccess, err)
	}
	return out, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.New().Wrap(errors.ErrStorageClose, err)
	}
	return nil
}
