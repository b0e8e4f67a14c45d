package settings

const (
	createTableSQL = `
	   CREATE TABLE IF NOT EXISTS settings (
	       key   TEXT PRIMARY KEY,
	       value REAL
	   );`

	selectValueSQL = `SELECT value FROM settings WHERE key = ?`

	selectAllSQL = `SELECT key, value FROM settings ORDER BY key`

	upsertSQL = `
    INSERT INTO settings (key, value)
    VALUES (?, ?)
    ON CONFLICT(key) DO UPDATE SET value = excluded.value`
)
