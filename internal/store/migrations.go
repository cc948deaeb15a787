package store

// schema runs on both sqlite and Postgres. Days are stored as YYYY-MM-DD
// text so lexical order is calendar order.
const schema = `
CREATE TABLE IF NOT EXISTS channels (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL DEFAULT '',
    thumbnail        TEXT NOT NULL DEFAULT '',
    subscriber_count BIGINT NOT NULL DEFAULT 0,
    video_count      BIGINT NOT NULL DEFAULT 0,
    view_count       BIGINT NOT NULL DEFAULT 0,
    avg_view_count   DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at       TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS videos (
    id               TEXT PRIMARY KEY,
    channel_id       TEXT NOT NULL,
    title            TEXT NOT NULL DEFAULT '',
    published_at     TIMESTAMP NOT NULL,
    duration_seconds INTEGER NOT NULL DEFAULT 0,
    category_id      TEXT NOT NULL DEFAULT '',
    thumbnail        TEXT NOT NULL DEFAULT '',
    updated_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_videos_channel ON videos(channel_id);

CREATE TABLE IF NOT EXISTS daily_video_stats (
    day           TEXT NOT NULL,
    video_id      TEXT NOT NULL,
    view_count    BIGINT NOT NULL DEFAULT 0,
    like_count    BIGINT NOT NULL DEFAULT 0,
    comment_count BIGINT NOT NULL DEFAULT 0,
    age_hours     DOUBLE PRECISION NOT NULL DEFAULT 0,
    view_velocity DOUBLE PRECISION NOT NULL DEFAULT 0,
    collected_at  TIMESTAMP NOT NULL,
    PRIMARY KEY (day, video_id)
);

CREATE TABLE IF NOT EXISTS hot_list_items (
    day               TEXT NOT NULL,
    video_id          TEXT NOT NULL,
    channel_id        TEXT NOT NULL DEFAULT '',
    rank              INTEGER NOT NULL,
    view_count        BIGINT NOT NULL DEFAULT 0,
    subscriber_count  BIGINT NOT NULL DEFAULT 0,
    contribution_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    performance_rate  DOUBLE PRECISION NOT NULL DEFAULT 0,
    view_velocity     DOUBLE PRECISION NOT NULL DEFAULT 0,
    engagement_rate   DOUBLE PRECISION NOT NULL DEFAULT 0,
    score             DOUBLE PRECISION NOT NULL DEFAULT 0,
    reasons           TEXT NOT NULL DEFAULT '[]',
    created_at        TIMESTAMP NOT NULL,
    PRIMARY KEY (day, video_id)
);

CREATE INDEX IF NOT EXISTS idx_hot_list_day_rank ON hot_list_items(day, rank);

CREATE TABLE IF NOT EXISTS video_snapshots (
    video_id      TEXT NOT NULL,
    day           TEXT NOT NULL,
    view_count    BIGINT NOT NULL DEFAULT 0,
    like_count    BIGINT NOT NULL DEFAULT 0,
    comment_count BIGINT NOT NULL DEFAULT 0,
    captured_at   TIMESTAMP NOT NULL,
    PRIMARY KEY (video_id, day)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_day ON video_snapshots(day);

CREATE TABLE IF NOT EXISTS pipeline_runs (
    id             TEXT PRIMARY KEY,
    day            TEXT NOT NULL,
    status         TEXT NOT NULL,
    started_at     TIMESTAMP NOT NULL,
    duration_ms    BIGINT NOT NULL DEFAULT 0,
    candidates     INTEGER NOT NULL DEFAULT 0,
    channels       INTEGER NOT NULL DEFAULT 0,
    qualified      INTEGER NOT NULL DEFAULT 0,
    write_failures INTEGER NOT NULL DEFAULT 0,
    error          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON pipeline_runs(started_at);
`
