package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Init opens the database pool for the given driver ("postgres" or "sqlite")
// and bootstraps the schema. Queries throughout the engine use $1 ordinal
// placeholders, which both drivers accept.
func Init(driver, dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if driver != "postgres" && driver != "sqlite" {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(conn); err != nil {
		return nil, err
	}

	log.Info().Str("driver", driver).Msg("Database connection established")
	return conn, nil
}

// Migrate creates the schema. Statements are idempotent and portable between
// postgres and sqlite; ids are TEXT uuids generated by the application.
func Migrate(conn *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
	}
	log.Info().Int("statements", len(schema)).Msg("Schema migration completed")
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		channel TEXT NOT NULL DEFAULT 'whatsapp',
		tenant_id TEXT NOT NULL,
		api_token TEXT NOT NULL DEFAULT '',
		default_queue_id TEXT,
		ai_enabled BOOLEAN,
		webhook_url TEXT NOT NULL DEFAULT '',
		funnel_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS contacts (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		number TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		picture_url TEXT NOT NULL DEFAULT '',
		edited BOOLEAN NOT NULL DEFAULT FALSE,
		ai_enabled BOOLEAN,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_contacts_tenant_number ON contacts (tenant_id, number)`,

	`CREATE TABLE IF NOT EXISTS chat_groups (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		picture_url TEXT NOT NULL DEFAULT '',
		instance_id TEXT,
		tenant_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_groups_chat_id ON chat_groups (chat_id)`,

	`CREATE TABLE IF NOT EXISTS group_members (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		number TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		picture_url TEXT NOT NULL DEFAULT '',
		lid TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_group_members_group_number ON group_members (group_id, number)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		contact_id TEXT,
		group_id TEXT,
		instance_id TEXT,
		tenant_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		agent_id TEXT,
		queue_id TEXT,
		unread INTEGER NOT NULL DEFAULT 0,
		last_message TEXT NOT NULL DEFAULT '',
		last_message_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	// The single-active-conversation invariant is still resolved by
	// lookup-before-insert; these partial indexes make the concurrent
	// duplicate insert fail so the resolver's re-query fallback has a
	// deterministic winner.
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_conversations_active_contact
		ON conversations (instance_id, contact_id)
		WHERE status IN ('pending','open') AND contact_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_conversations_active_group
		ON conversations (instance_id, group_id)
		WHERE status IN ('pending','open') AND group_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		direction TEXT NOT NULL,
		type TEXT NOT NULL,
		source_id TEXT NOT NULL DEFAULT '',
		sender_name TEXT NOT NULL DEFAULT '',
		sender_jid TEXT NOT NULL DEFAULT '',
		sender_picture TEXT NOT NULL DEFAULT '',
		media_url TEXT NOT NULL DEFAULT '',
		media_name TEXT NOT NULL DEFAULT '',
		media_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'sent',
		reply_to_id TEXT NOT NULL DEFAULT '',
		quoted_body TEXT NOT NULL DEFAULT '',
		quoted_sender TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	// Duplicate webhook delivery of the same provider message id becomes a
	// recognized already-processed outcome instead of a second row.
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_messages_conversation_source
		ON messages (conversation_id, source_id)
		WHERE source_id <> ''`,
	`CREATE INDEX IF NOT EXISTS ix_messages_source ON messages (source_id)`,

	`CREATE TABLE IF NOT EXISTS follow_up_schedules (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		step_index INTEGER NOT NULL DEFAULT 0,
		first_delay_minutes INTEGER NOT NULL DEFAULT 30,
		next_fire_at TIMESTAMP,
		auto_send BOOLEAN NOT NULL DEFAULT FALSE,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_follow_up_conversation ON follow_up_schedules (conversation_id)`,

	`CREATE TABLE IF NOT EXISTS nps_entries (
		id TEXT PRIMARY KEY,
		contact_id TEXT NOT NULL,
		score TEXT NOT NULL,
		feedback TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'agent',
		notify_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		push_token TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS user_queues (
		user_id TEXT NOT NULL,
		queue_id TEXT NOT NULL,
		PRIMARY KEY (user_id, queue_id)
	)`,

	`CREATE TABLE IF NOT EXISTS queues (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS funnels (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS funnel_stages (
		id TEXT PRIMARY KEY,
		funnel_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS deals (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		contact_id TEXT NOT NULL,
		funnel_id TEXT NOT NULL,
		stage_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS tenant_settings (
		tenant_id TEXT PRIMARY KEY,
		ai_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		ai_queue_id TEXT,
		ai_funnel_id TEXT
	)`,
}
