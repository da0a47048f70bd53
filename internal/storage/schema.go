package storage

const schemaSQL = `
-- Dedup index: the durable authority on which identity keys were claimed for
-- the frontier and which were fetched. 'seen' rows without a matching fetch
-- are unfinished work and are re-enqueued on resume.
CREATE TABLE IF NOT EXISTS dedup (
    key TEXT PRIMARY KEY NOT NULL,
    state TEXT NOT NULL DEFAULT 'seen' CHECK (state IN ('seen', 'fetched')),
    depth INTEGER NOT NULL DEFAULT 0,
    added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_dedup_state ON dedup(state);

-- Extracted page records, one row per fetched page.
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    status_code INTEGER,
    title TEXT,
    meta_description TEXT,
    meta_robots TEXT,
    canonical_url TEXT,
    content_hash TEXT,
    fetched_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_pages_content_hash ON pages(content_hash) WHERE content_hash IS NOT NULL;

-- Tasks given up for good, kept for diagnostics.
CREATE TABLE IF NOT EXISTS abandoned (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    key TEXT NOT NULL,
    url TEXT NOT NULL,
    error_kind TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_abandoned_kind ON abandoned(error_kind);

-- Session metadata as key-value pairs.
CREATE TABLE IF NOT EXISTS crawl_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);
`
