package db

type dialect struct {
	name            string
	migrationsTable string
}

var dialects = map[string]dialect{
	"postgres": {
		name: "postgres",
		migrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
            version INT PRIMARY KEY,
            name TEXT NOT NULL,
            applied_at TIMESTAMPTZ DEFAULT NOW()
        )`,
	},
	"sqlite": {
		name: "sqlite",
		migrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
            version INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
	},
}

type migration struct {
	name     string
	postgres string
	sqlite   string
}

// Append only; applied versions are recorded by position.
var migrations = []migration{
	{
		name: "create users",
		postgres: `CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            handle TEXT NOT NULL DEFAULT '',
            avatar_url TEXT NOT NULL DEFAULT ''
        )`,
		sqlite: `CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            handle TEXT NOT NULL DEFAULT '',
            avatar_url TEXT NOT NULL DEFAULT ''
        )`,
	},
	{
		name: "create listings",
		postgres: `CREATE TABLE IF NOT EXISTS listings (
            id BIGSERIAL PRIMARY KEY,
            seller_id BIGINT,
            title TEXT NOT NULL,
            image_url TEXT NOT NULL DEFAULT ''
        )`,
		sqlite: `CREATE TABLE IF NOT EXISTS listings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            seller_id INTEGER,
            title TEXT NOT NULL,
            image_url TEXT NOT NULL DEFAULT ''
        )`,
	},
	{
		name: "create conversations",
		postgres: `CREATE TABLE IF NOT EXISTS conversations (
            id BIGSERIAL PRIMARY KEY,
            participant_a BIGINT NOT NULL,
            participant_b BIGINT NOT NULL,
            listing_id BIGINT NULL,
            subject_key BIGINT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL,
            last_message_at TIMESTAMPTZ NOT NULL,
            CHECK (participant_a < participant_b),
            UNIQUE (participant_a, participant_b, subject_key)
        )`,
		sqlite: `CREATE TABLE IF NOT EXISTS conversations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            participant_a INTEGER NOT NULL,
            participant_b INTEGER NOT NULL,
            listing_id INTEGER NULL,
            subject_key INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            last_message_at DATETIME NOT NULL,
            CHECK (participant_a < participant_b),
            UNIQUE (participant_a, participant_b, subject_key)
        )`,
	},
	{
		name:     "index conversations by participant b",
		postgres: `CREATE INDEX IF NOT EXISTS conversations_participant_b_idx ON conversations (participant_b)`,
		sqlite:   `CREATE INDEX IF NOT EXISTS conversations_participant_b_idx ON conversations (participant_b)`,
	},
	{
		name: "create messages",
		postgres: `CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            conversation_id BIGINT NOT NULL REFERENCES conversations(id),
            sender_id BIGINT NOT NULL,
            body TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            read_at TIMESTAMPTZ NULL
        )`,
		sqlite: `CREATE TABLE IF NOT EXISTS messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            conversation_id INTEGER NOT NULL REFERENCES conversations(id),
            sender_id INTEGER NOT NULL,
            body TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            read_at DATETIME NULL
        )`,
	},
	{
		name:     "index messages by conversation",
		postgres: `CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, created_at, id)`,
		sqlite:   `CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, created_at, id)`,
	},
	{
		name: "create support messages",
		postgres: `CREATE TABLE IF NOT EXISTS support_messages (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            sender_role TEXT NOT NULL CHECK (sender_role IN ('user', 'admin')),
            body TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            read_at TIMESTAMPTZ NULL
        )`,
		sqlite: `CREATE TABLE IF NOT EXISTS support_messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            sender_role TEXT NOT NULL CHECK (sender_role IN ('user', 'admin')),
            body TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            read_at DATETIME NULL
        )`,
	},
	{
		name:     "index support messages by user",
		postgres: `CREATE INDEX IF NOT EXISTS support_messages_user_idx ON support_messages (user_id, created_at, id)`,
		sqlite:   `CREATE INDEX IF NOT EXISTS support_messages_user_idx ON support_messages (user_id, created_at, id)`,
	},
}
