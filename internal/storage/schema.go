// internal/storage/schema.go
package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// ensureSchema creates every table the engine persists to. DDL is written
// once with type markers and expanded per dialect; statements are idempotent
// so startup can always run them.
func ensureSchema(db *sql.DB, d dialect) error {
	autoPK := "INTEGER PRIMARY KEY AUTOINCREMENT"
	switch d.Name() {
	case BackendPostgres:
		autoPK = "BIGSERIAL PRIMARY KEY"
	case BackendMySQL:
		autoPK = "BIGINT AUTO_INCREMENT PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS platforms (
			id {PK},
			name VARCHAR(32) NOT NULL UNIQUE,
			display_name VARCHAR(64) NOT NULL,
			base_url TEXT NOT NULL,
			api_url TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			requests_per_minute INTEGER NOT NULL DEFAULT 15,
			requests_per_hour INTEGER NOT NULL DEFAULT 300
		)`,
		`CREATE TABLE IF NOT EXISTS authors (
			id {PK},
			platform VARCHAR(32) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			username VARCHAR(128) NOT NULL,
			display_name VARCHAR(256),
			bio TEXT,
			followers_count BIGINT NOT NULL DEFAULT 0,
			following_count BIGINT NOT NULL DEFAULT 0,
			posts_count BIGINT NOT NULL DEFAULT 0,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			is_private BOOLEAN NOT NULL DEFAULT FALSE,
			metadata {JSON},
			created_at {TIME},
			updated_at {TIME},
			UNIQUE (platform, user_id),
			UNIQUE (platform, username)
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id {PK},
			platform VARCHAR(32) NOT NULL,
			post_id VARCHAR(128) NOT NULL,
			author VARCHAR(128),
			content TEXT,
			url TEXT,
			media_urls {JSON},
			hashtags {JSON},
			mentions {JSON},
			likes BIGINT NOT NULL DEFAULT 0,
			comments BIGINT NOT NULL DEFAULT 0,
			shares BIGINT NOT NULL DEFAULT 0,
			views BIGINT NOT NULL DEFAULT 0,
			engagement_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			is_retweet BOOLEAN NOT NULL DEFAULT FALSE,
			is_reply BOOLEAN NOT NULL DEFAULT FALSE,
			parent_post_id VARCHAR(128),
			published_at {TIME},
			scraped_at {TIME},
			raw_data {JSON},
			created_at {TIME},
			updated_at {TIME},
			UNIQUE (platform, post_id)
		)`,
		`CREATE TABLE IF NOT EXISTS scraping_sessions (
			id {PK},
			session_id VARCHAR(36) NOT NULL UNIQUE,
			platform VARCHAR(32) NOT NULL,
			target VARCHAR(256) NOT NULL,
			target_type VARCHAR(16) NOT NULL,
			status VARCHAR(16) NOT NULL,
			total_posts BIGINT NOT NULL DEFAULT 0,
			successful_posts BIGINT NOT NULL DEFAULT 0,
			failed_posts BIGINT NOT NULL DEFAULT 0,
			start_time {TIME},
			end_time {TIME},
			duration_seconds DOUBLE PRECISION,
			last_error TEXT,
			config {JSON}
		)`,
		`CREATE TABLE IF NOT EXISTS error_records (
			id {PK},
			session_id VARCHAR(36),
			error_type VARCHAR(32) NOT NULL,
			message TEXT NOT NULL,
			code VARCHAR(32),
			stack_trace TEXT,
			context {JSON},
			occurred_at {TIME}
		)`,
		`CREATE TABLE IF NOT EXISTS proxies (
			id {PK},
			url TEXT NOT NULL,
			proxy_type VARCHAR(16),
			username VARCHAR(128),
			country VARCHAR(8),
			region VARCHAR(64),
			status VARCHAR(16) NOT NULL,
			success_count BIGINT NOT NULL DEFAULT 0,
			failure_count BIGINT NOT NULL DEFAULT 0,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			last_response_ms BIGINT,
			uptime_percentage DOUBLE PRECISION,
			last_checked {TIME},
			UNIQUE (url)
		)`,
		`CREATE TABLE IF NOT EXISTS rate_limit_windows (
			id {PK},
			platform VARCHAR(32) NOT NULL,
			proxy_url VARCHAR(256) NOT NULL DEFAULT '',
			endpoint VARCHAR(64) NOT NULL,
			requests_made INTEGER NOT NULL DEFAULT 0,
			requests_allowed INTEGER NOT NULL DEFAULT 0,
			window_start {TIME},
			reset_time {TIME},
			UNIQUE (platform, proxy_url, endpoint)
		)`,
		`CREATE TABLE IF NOT EXISTS user_agents (
			id {PK},
			fingerprint TEXT NOT NULL,
			browser VARCHAR(32),
			os VARCHAR(32),
			device VARCHAR(32),
			usage_count BIGINT NOT NULL DEFAULT 0,
			last_used {TIME},
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			UNIQUE (fingerprint)
		)`,
		`CREATE TABLE IF NOT EXISTS analytics_metrics (
			id {PK},
			metric_date VARCHAR(10) NOT NULL,
			platform VARCHAR(32) NOT NULL,
			metric_name VARCHAR(64) NOT NULL,
			metric_value DOUBLE PRECISION NOT NULL,
			UNIQUE (metric_date, platform, metric_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_platform_published
			ON posts (platform, published_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_platform_status
			ON scraping_sessions (platform, status)`,
		`CREATE INDEX IF NOT EXISTS idx_errors_session
			ON error_records (session_id)`,
	}

	replacer := strings.NewReplacer(
		"{PK}", autoPK,
		"{JSON}", d.JSONType(),
		"{TIME}", d.TimeType(),
	)

	for _, stmt := range stmts {
		ddl := replacer.Replace(stmt)
		if d.Name() == BackendMySQL && strings.HasPrefix(ddl, "CREATE INDEX IF NOT EXISTS") {
			// MySQL has no IF NOT EXISTS for indexes; duplicate-index
			// errors on re-run are ignored below.
			ddl = strings.Replace(ddl, "CREATE INDEX IF NOT EXISTS", "CREATE INDEX", 1)
			if _, err := db.Exec(ddl); err != nil && !strings.Contains(err.Error(), "Duplicate") {
				return fmt.Errorf("creating index: %w", err)
			}
			continue
		}
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}

	return applyCapabilitySchema(db, d)
}

// applyCapabilitySchema installs the optional search and audit objects for
// backends that support them. Failures here downgrade the capability rather
// than failing startup.
func applyCapabilitySchema(db *sql.DB, d dialect) error {
	switch d.Name() {
	case BackendSQLite:
		_, err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS posts_fts
			USING fts5(content, author, platform, post_id UNINDEXED)`)
		if err != nil {
			// FTS5 may be compiled out; the gateway reports the
			// capability from a live probe, not from the dialect.
			return nil
		}
	case BackendPostgres:
		stmts := []string{
			`ALTER TABLE posts ADD COLUMN IF NOT EXISTS content_tsv tsvector
				GENERATED ALWAYS AS (to_tsvector('simple', coalesce(content, ''))) STORED`,
			`CREATE INDEX IF NOT EXISTS idx_posts_tsv ON posts USING GIN (content_tsv)`,
			`CREATE TABLE IF NOT EXISTS audit_log (
				id BIGSERIAL PRIMARY KEY,
				table_name TEXT NOT NULL,
				record_pk TEXT NOT NULL,
				action TEXT NOT NULL,
				old_data JSONB,
				new_data JSONB,
				changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE OR REPLACE FUNCTION audit_posts() RETURNS trigger AS $$
			BEGIN
				IF TG_OP = 'UPDATE' THEN
					INSERT INTO audit_log (table_name, record_pk, action, old_data, new_data)
					VALUES ('posts', OLD.platform || ':' || OLD.post_id, TG_OP, to_jsonb(OLD), to_jsonb(NEW));
				ELSE
					INSERT INTO audit_log (table_name, record_pk, action, new_data)
					VALUES ('posts', NEW.platform || ':' || NEW.post_id, TG_OP, to_jsonb(NEW));
				END IF;
				RETURN NEW;
			END;
			$$ LANGUAGE plpgsql`,
			`DROP TRIGGER IF EXISTS trg_audit_posts ON posts`,
			`CREATE TRIGGER trg_audit_posts AFTER INSERT OR UPDATE ON posts
				FOR EACH ROW EXECUTE FUNCTION audit_posts()`,
		}
		for _, stmt := range stmts {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("applying postgres capability schema: %w", err)
			}
		}
	}
	return nil
}

// probeFTS reports whether SQLite full-text search is actually usable.
func probeFTS(db *sql.DB) bool {
	var n int
	err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE name = 'posts_fts'`).Scan(&n)
	return err == nil && n > 0
}
