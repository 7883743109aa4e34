package storage

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL
);

-- Where a deck's cards are imported from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deck_id TEXT NOT NULL REFERENCES decks(id) ON DELETE CASCADE,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME
);

CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL REFERENCES decks(id) ON DELETE CASCADE,
    question TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    hash TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'new',
    interval_days REAL NOT NULL DEFAULT 0,
    ease_factor REAL NOT NULL DEFAULT 2.5,
    due_at DATETIME,
    last_reviewed_at DATETIME,
    repetitions INTEGER NOT NULL DEFAULT 0,
    position INTEGER NOT NULL,
    source_id INTEGER REFERENCES sources(id) ON DELETE SET NULL,
    created_at DATETIME NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    UNIQUE(deck_id, hash)
);

CREATE INDEX IF NOT EXISTS idx_cards_deck_position ON cards(deck_id, position);

-- Per-deck first-rating offsets. Missing rows fall back to the global defaults.
CREATE TABLE IF NOT EXISTS deck_config (
    deck_id TEXT PRIMARY KEY REFERENCES decks(id) ON DELETE CASCADE,
    again_days REAL NOT NULL,
    hard_days REAL NOT NULL,
    good_days REAL NOT NULL,
    easy_days REAL NOT NULL,
    variant TEXT NOT NULL DEFAULT 'simple'
);

CREATE TABLE IF NOT EXISTS study_state (
    deck_id TEXT PRIMARY KEY REFERENCES decks(id) ON DELETE CASCADE,
    cursor_pos INTEGER NOT NULL DEFAULT 0,
    new_start_pos INTEGER NOT NULL DEFAULT 0,
    review_start_pos INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL
);

-- Append-only. Rows outlive the cards they refer to.
CREATE TABLE IF NOT EXISTS review_logs (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    rating INTEGER NOT NULL,
    rated_at DATETIME NOT NULL,
    mode TEXT NOT NULL,
    prev_status TEXT NOT NULL,
    prev_interval REAL NOT NULL,
    new_interval REAL NOT NULL,
    prev_ease REAL NOT NULL,
    new_ease REAL NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_review_logs_deck_rated ON review_logs(deck_id, rated_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
    id BIGSERIAL PRIMARY KEY,
    deck_id TEXT NOT NULL REFERENCES decks(id) ON DELETE CASCADE,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL REFERENCES decks(id) ON DELETE CASCADE,
    question TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    hash TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'new',
    interval_days DOUBLE PRECISION NOT NULL DEFAULT 0,
    ease_factor DOUBLE PRECISION NOT NULL DEFAULT 2.5,
    due_at TIMESTAMPTZ,
    last_reviewed_at TIMESTAMPTZ,
    repetitions INTEGER NOT NULL DEFAULT 0,
    position INTEGER NOT NULL,
    source_id BIGINT REFERENCES sources(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL,
    version BIGINT NOT NULL DEFAULT 1,
    UNIQUE(deck_id, hash)
);

CREATE INDEX IF NOT EXISTS idx_cards_deck_position ON cards(deck_id, position);

CREATE TABLE IF NOT EXISTS deck_config (
    deck_id TEXT PRIMARY KEY REFERENCES decks(id) ON DELETE CASCADE,
    again_days DOUBLE PRECISION NOT NULL,
    hard_days DOUBLE PRECISION NOT NULL,
    good_days DOUBLE PRECISION NOT NULL,
    easy_days DOUBLE PRECISION NOT NULL,
    variant TEXT NOT NULL DEFAULT 'simple'
);

CREATE TABLE IF NOT EXISTS study_state (
    deck_id TEXT PRIMARY KEY REFERENCES decks(id) ON DELETE CASCADE,
    cursor_pos INTEGER NOT NULL DEFAULT 0,
    new_start_pos INTEGER NOT NULL DEFAULT 0,
    review_start_pos INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS review_logs (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    rating INTEGER NOT NULL,
    rated_at TIMESTAMPTZ NOT NULL,
    mode TEXT NOT NULL,
    prev_status TEXT NOT NULL,
    prev_interval DOUBLE PRECISION NOT NULL,
    new_interval DOUBLE PRECISION NOT NULL,
    prev_ease DOUBLE PRECISION NOT NULL,
    new_ease DOUBLE PRECISION NOT NULL,
    duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_review_logs_deck_rated ON review_logs(deck_id, rated_at);
`
