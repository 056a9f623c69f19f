package serverdb

// ServerSchemaVersion is the current server database schema version
const ServerSchemaVersion = 2

const serverSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS api_keys (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    key_hash TEXT UNIQUE NOT NULL,
    key_prefix TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    expires_at DATETIME,
    last_used_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL CHECK(type IN ('income', 'expense')),
    amount TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    date TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reminders (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    amount TEXT NOT NULL,
    due_date TEXT NOT NULL,
    frequency TEXT NOT NULL DEFAULT 'once',
    is_paid INTEGER NOT NULL DEFAULT 0,
    category TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS investments (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT '',
    valor_investido TEXT NOT NULL,
    data_planejada TEXT NOT NULL,
    ja_investido INTEGER NOT NULL DEFAULT 0,
    data_realizacao TEXT,
    transaction_id TEXT,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id);
`

// Migration defines a server database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all server database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add owner indexes for row-level filtering",
		SQL: `CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_reminders_user ON reminders(user_id, due_date);
		CREATE INDEX IF NOT EXISTS idx_investments_user ON investments(user_id, created_at);`,
	},
}

// tableColumns lists the writable columns of each data table. Keys outside
// this set are rejected before any SQL is built.
var tableColumns = map[string]map[string]columnKind{
	"transactions": {
		"id": colText, "user_id": colText, "type": colText, "amount": colText,
		"category": colText, "description": colText, "date": colText, "created_at": colText,
	},
	"reminders": {
		"id": colText, "user_id": colText, "title": colText, "amount": colText,
		"due_date": colText, "frequency": colText, "is_paid": colBool,
		"category": colText, "created_at": colText,
	},
	"investments": {
		"id": colText, "user_id": colText, "name": colText, "kind": colText,
		"valor_investido": colText, "data_planejada": colText, "ja_investido": colBool,
		"data_realizacao": colText, "transaction_id": colText, "created_at": colText,
	},
}

type columnKind int

const (
	colText columnKind = iota
	colBool
)
