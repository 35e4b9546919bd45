package sqlite

import "github.com/steveyegge/stepview/internal/storage/migrations"

const schema = `
-- Alert inbox, one row per dedup marker
CREATE TABLE IF NOT EXISTS alert_items (
    id TEXT PRIMARY KEY,
    issue_key TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT '',
    updated TEXT NOT NULL,
    updated_label TEXT NOT NULL DEFAULT '',
    link TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    is_read INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1))
);

CREATE INDEX IF NOT EXISTS idx_alert_items_created_at ON alert_items(created_at);
CREATE INDEX IF NOT EXISTS idx_alert_items_is_read ON alert_items(is_read);

-- Markers already notified, with the time they were first seen
CREATE TABLE IF NOT EXISTS seen_markers (
    marker TEXT PRIMARY KEY,
    seen_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_seen_markers_seen_at ON seen_markers(seen_at);

-- Namespaced key-value store (synced settings, local working state)
CREATE TABLE IF NOT EXISTS kv (
    namespace TEXT NOT NULL,
    key TEXT NOT NULL,
    value BLOB NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (namespace, key)
);
`

// schemaMigrations are applied in order after the base schema
var schemaMigrations = []migrations.Migration{
	{
		Version:     1,
		Description: "index alert items by issue key",
		Up:          `CREATE INDEX IF NOT EXISTS idx_alert_items_issue_key ON alert_items(issue_key)`,
	},
	{
		Version:     2,
		Description: "index key-value rows by update time",
		Up:          `CREATE INDEX IF NOT EXISTS idx_kv_updated_at ON kv(updated_at)`,
	},
}
