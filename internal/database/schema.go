package database

// Statements are kept driver-portable: both MySQL and SQLite accept them,
// timestamps are stored as unix seconds and set from Go code.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    telegram_id BIGINT PRIMARY KEY,
    username VARCHAR(255) NOT NULL DEFAULT '',
    first_name VARCHAR(255) NOT NULL DEFAULT '',
    is_pro TINYINT NOT NULL DEFAULT 0,
    is_banned TINYINT NOT NULL DEFAULT 0,
    requests_used INT NOT NULL DEFAULT 0,
    window_start BIGINT NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS solutions (
    id VARCHAR(36) PRIMARY KEY,
    answer_text TEXT NOT NULL,
    created_at BIGINT NOT NULL DEFAULT 0
)`,
}
