package store

const schema = `
CREATE TABLE IF NOT EXISTS account_snapshots (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    username           TEXT NOT NULL,
    observed_at        DATETIME NOT NULL,
    post_karma         INTEGER NOT NULL DEFAULT 0,
    comment_karma      INTEGER NOT NULL DEFAULT 0,
    total_karma        INTEGER NOT NULL DEFAULT 0,
    account_created    DATETIME NOT NULL,
    is_gold            BOOLEAN NOT NULL DEFAULT 0,
    is_mod             BOOLEAN NOT NULL DEFAULT 0,
    has_verified_email BOOLEAN NOT NULL DEFAULT 0,
    raw_data           TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_snapshots_user ON account_snapshots(username);
CREATE INDEX IF NOT EXISTS idx_snapshots_observed ON account_snapshots(username, observed_at);

CREATE TABLE IF NOT EXISTS posts (
    post_id          TEXT PRIMARY KEY,
    username         TEXT NOT NULL,
    subreddit        TEXT NOT NULL DEFAULT '',
    title            TEXT NOT NULL DEFAULT '',
    selftext         TEXT NOT NULL DEFAULT '',
    url              TEXT NOT NULL DEFAULT '',
    local_image_path TEXT NOT NULL DEFAULT '',
    score            INTEGER NOT NULL DEFAULT 0,
    upvote_ratio     REAL NOT NULL DEFAULT 0,
    num_comments     INTEGER NOT NULL DEFAULT 0,
    created_utc      DATETIME NOT NULL,
    first_seen       DATETIME NOT NULL,
    last_updated     DATETIME NOT NULL,
    is_self          BOOLEAN NOT NULL DEFAULT 0,
    over_18          BOOLEAN NOT NULL DEFAULT 0,
    permalink        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(username);
CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_utc);

CREATE TABLE IF NOT EXISTS comments (
    comment_id   TEXT PRIMARY KEY,
    username     TEXT NOT NULL,
    subreddit    TEXT NOT NULL DEFAULT '',
    body         TEXT NOT NULL DEFAULT '',
    score        INTEGER NOT NULL DEFAULT 0,
    created_utc  DATETIME NOT NULL,
    first_seen   DATETIME NOT NULL,
    last_updated DATETIME NOT NULL,
    parent_id    TEXT NOT NULL DEFAULT '',
    link_id      TEXT NOT NULL DEFAULT '',
    permalink    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_comments_user ON comments(username);
CREATE INDEX IF NOT EXISTS idx_comments_created ON comments(created_utc);

CREATE TABLE IF NOT EXISTS score_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    item_kind   TEXT NOT NULL,
    item_id     TEXT NOT NULL,
    score       INTEGER NOT NULL,
    observed_at DATETIME NOT NULL,
    UNIQUE(item_kind, item_id, observed_at)
);

CREATE INDEX IF NOT EXISTS idx_score_history_item ON score_history(item_kind, item_id);
`

// tables is every table a valid dataset must contain. The merge tool
// verifies them before touching anything.
var tables = []string{"account_snapshots", "posts", "comments", "score_history"}
