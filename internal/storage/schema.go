package storage

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    learner_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    card_count INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    UNIQUE (learner_id, name)
)`,
	// 'sources' tracks where imported cards come from: a local directory or a git repository.
	`CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    learner_id TEXT NOT NULL,
    deck_id TEXT REFERENCES decks(id) ON DELETE SET NULL,
    path TEXT NOT NULL,
    type TEXT NOT NULL,
    last_scanned_at DATETIME,
    UNIQUE (learner_id, path)
)`,
	`CREATE TABLE IF NOT EXISTS categories (
    id TEXT PRIMARY KEY,
    learner_id TEXT NOT NULL,
    name TEXT NOT NULL,
    color TEXT NOT NULL,
    icon TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    UNIQUE (learner_id, name)
)`,
	// review_count and correct_count may be NULL on legacy rows and read as 0.
	`CREATE TABLE IF NOT EXISTS flashcards (
    id TEXT PRIMARY KEY,
    learner_id TEXT NOT NULL,
    deck_id TEXT REFERENCES decks(id) ON DELETE SET NULL,
    category_id TEXT REFERENCES categories(id) ON DELETE SET NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    content_hash TEXT NOT NULL,
    source_id INTEGER REFERENCES sources(id) ON DELETE CASCADE,
    created_from TEXT NOT NULL DEFAULT 'manual',
    review_count INTEGER DEFAULT 0,
    correct_count INTEGER DEFAULT 0,
    mastery_level INTEGER NOT NULL DEFAULT 0,
    last_reviewed_at DATETIME,
    next_review_at DATETIME,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_flashcards_due ON flashcards (learner_id, next_review_at)`,
	`CREATE INDEX IF NOT EXISTS idx_flashcards_source_hash ON flashcards (source_id, content_hash)`,
	`CREATE TABLE IF NOT EXISTS study_history (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL REFERENCES flashcards(id) ON DELETE CASCADE,
    learner_id TEXT NOT NULL,
    is_correct BOOLEAN NOT NULL,
    response_time_ms INTEGER,
    difficulty_rating INTEGER,
    studied_at DATETIME NOT NULL
)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    learner_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    card_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    UNIQUE (learner_id, name)
)`,
	`CREATE TABLE IF NOT EXISTS sources (
    id BIGSERIAL PRIMARY KEY,
    learner_id TEXT NOT NULL,
    deck_id TEXT REFERENCES decks(id) ON DELETE SET NULL,
    path TEXT NOT NULL,
    type TEXT NOT NULL,
    last_scanned_at TIMESTAMPTZ,
    UNIQUE (learner_id, path)
)`,
	`CREATE TABLE IF NOT EXISTS categories (
    id TEXT PRIMARY KEY,
    learner_id TEXT NOT NULL,
    name TEXT NOT NULL,
    color TEXT NOT NULL,
    icon TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    UNIQUE (learner_id, name)
)`,
	`CREATE TABLE IF NOT EXISTS flashcards (
    id TEXT PRIMARY KEY,
    learner_id TEXT NOT NULL,
    deck_id TEXT REFERENCES decks(id) ON DELETE SET NULL,
    category_id TEXT REFERENCES categories(id) ON DELETE SET NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    content_hash TEXT NOT NULL,
    source_id BIGINT REFERENCES sources(id) ON DELETE CASCADE,
    created_from TEXT NOT NULL DEFAULT 'manual',
    review_count INTEGER DEFAULT 0,
    correct_count INTEGER DEFAULT 0,
    mastery_level INTEGER NOT NULL DEFAULT 0,
    last_reviewed_at TIMESTAMPTZ,
    next_review_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_flashcards_due ON flashcards (learner_id, next_review_at)`,
	`CREATE INDEX IF NOT EXISTS idx_flashcards_source_hash ON flashcards (source_id, content_hash)`,
	`CREATE TABLE IF NOT EXISTS study_history (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL REFERENCES flashcards(id) ON DELETE CASCADE,
    learner_id TEXT NOT NULL,
    is_correct BOOLEAN NOT NULL,
    response_time_ms INTEGER,
    difficulty_rating INTEGER,
    studied_at TIMESTAMPTZ NOT NULL
)`,
}
