package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/hotlist/pkg/trend"
)

// ErrNotConfigured is returned by Open when no DSN is configured. Readers
// treat it as "no data" rather than a failure.
var ErrNotConfigured = errors.New("storage not configured")

// DayLayout is the storage format of calendar days.
const DayLayout = "2006-01-02"

// FormatDay returns the calendar day of t in its own location.
func FormatDay(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay validates a YYYY-MM-DD string.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return t, nil
}

// AddDays shifts a YYYY-MM-DD day by n calendar days.
func AddDays(day string, n int) (string, error) {
	t, err := ParseDay(day)
	if err != nil {
		return "", err
	}
	return FormatDay(t.AddDate(0, 0, n)), nil
}

// RowFailure is one row that could not be written.
type RowFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// WriteResult reports the outcome of one batch write. Failed rows never undo
// the rows already written.
type WriteResult struct {
	Entity    string       `json:"entity"`
	Succeeded int          `json:"succeeded"`
	Failures  []RowFailure `json:"failures,omitempty"`
}

// Failed returns the number of rows that were not written.
func (r WriteResult) Failed() int { return len(r.Failures) }

func (r *WriteResult) fail(key string, err error) {
	r.Failures = append(r.Failures, RowFailure{Key: key, Error: err.Error()})
}

// Store is the persistence interface of the hot-list pipeline.
type Store interface {
	UpsertChannels(ctx context.Context, channels []Channel) WriteResult
	ChannelsByID(ctx context.Context, ids []string) (map[string]Channel, error)
	UpsertVideos(ctx context.Context, videos []Video) WriteResult
	UpsertDailyStats(ctx context.Context, stats []DailyStat) WriteResult

	ReplaceHotList(ctx context.Context, day string, items []HotItem) WriteResult
	HotListVideoIDs(ctx context.Context, from, to string) ([]string, error)
	ListHotItems(ctx context.Context, q ListQuery) (*ListPage, error)
	Days(ctx context.Context, limit int) ([]DayCount, error)
	RankedList(ctx context.Context, day string) (trend.List, error)
	Trends(ctx context.Context) (trend.Report, error)

	UpsertSnapshots(ctx context.Context, snaps []Snapshot) WriteResult
	SnapshotsForDay(ctx context.Context, day string, ids []string) (map[string]Snapshot, error)
	PurgeSnapshots(ctx context.Context, before string) (int64, error)

	RecordRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	Close() error
}

// SQLStore implements Store on sqlite or Postgres.
type SQLStore struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

var _ Store = (*SQLStore)(nil)

// Open connects to the configured database and runs migrations. An empty
// DSN yields ErrNotConfigured.
func Open(driver, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrNotConfigured
	}

	var sb sq.StatementBuilderType
	switch driver {
	case "", "sqlite":
		driver = "sqlite"
		dsn = sqliteDSN(dsn)
		sb = sq.StatementBuilder.PlaceholderFormat(sq.Question)
	case "postgres":
		sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLStore{db: db, sb: sb}, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// upsertEach executes query once per row so one bad row only loses itself.
func (s *SQLStore) upsertEach(ctx context.Context, entity, query string, n int, row func(i int) (string, []any)) WriteResult {
	res := WriteResult{Entity: entity}
	query = s.db.Rebind(query)
	for i := 0; i < n; i++ {
		key, args := row(i)
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			res.fail(key, err)
			continue
		}
		res.Succeeded++
	}
	return res
}

// chunks bounds the size of IN lists.
func chunks(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

const inListSize = 500
