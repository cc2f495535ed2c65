package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/leadforge/truthtable-backend/internal/pkg/logger"
	"github.com/leadforge/truthtable-backend/internal/types"
)

const tableName = "Truth"

// Store is the persistence boundary for the Truth table. The merge engine
// stays dialect-agnostic; SQLite and Postgres differ only in the dialect
// hooks below.
type Store interface {
	// Get returns the row for the given email along with its S.N.
	Get(ctx context.Context, email string) (types.Record, int64, bool, error)
	// Insert writes a new row and returns its assigned S.N.
	Insert(ctx context.Context, rec types.Record) (int64, error)
	// Update rewrites the row identified by sn.
	Update(ctx context.Context, sn int64, rec types.Record) error
	// EnsureColumns adds any unknown columns as nullable TEXT, idempotently.
	EnsureColumns(ctx context.Context, cols []string) error
	Columns(ctx context.Context) ([]string, error)
	Search(ctx context.Context, filters map[string]string, limit, offset int) ([]types.Record, int64, error)
	Stats(ctx context.Context) (Statistics, error)
	Close() error
}

type Statistics struct {
	TotalRecords       int64            `json:"total_records"`
	ByLeadSource       map[string]int64 `json:"by_lead_source"`
	RecentUpdates7Days int64            `json:"recent_updates_7_days"`
	TotalColumns       int              `json:"total_columns"`
}

// dialect isolates the SQL that differs between backends.
type dialect interface {
	name() string
	snColumnDef() string
	columnListSQL() string
	isDuplicateColumnErr(err error) bool
}

type sqliteDialect struct{}

func (sqliteDialect) name() string        { return "sqlite" }
func (sqliteDialect) snColumnDef() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (sqliteDialect) columnListSQL() string {
	return fmt.Sprintf(`SELECT name FROM pragma_table_info(%s) ORDER BY cid`, quoteLiteral(tableName))
}
func (sqliteDialect) isDuplicateColumnErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column")
}

type postgresDialect struct{}

func (postgresDialect) name() string        { return "postgres" }
func (postgresDialect) snColumnDef() string { return "SERIAL PRIMARY KEY" }
func (postgresDialect) columnListSQL() string {
	return fmt.Sprintf(`SELECT column_name AS name FROM information_schema.columns WHERE table_schema = 'public' AND table_name = %s ORDER BY ordinal_position`, quoteLiteral(tableName))
}
func (postgresDialect) isDuplicateColumnErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}

type sqlStore struct {
	db      *gorm.DB
	dialect dialect
	log     *logger.Logger

	// columnCache guards against redundant ALTER TABLE attempts. Extended
	// synchronously only; processing is single-threaded by design.
	columnCache map[string]bool
}

// NewSQLiteStore opens (or creates) a SQLite-backed Truth store.
func NewSQLiteStore(path string, baseLog *logger.Logger) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	return newSQLStore(db, sqliteDialect{}, baseLog)
}

// NewPostgresStore connects to Postgres with the given DSN.
func NewPostgresStore(dsn string, baseLog *logger.Logger) (Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return newSQLStore(db, postgresDialect{}, baseLog)
}

func newSQLStore(db *gorm.DB, d dialect, baseLog *logger.Logger) (*sqlStore, error) {
	s := &sqlStore{
		db:          db,
		dialect:     d,
		log:         baseLog.With("service", "TruthStore", "dialect", d.name()),
		columnCache: make(map[string]bool),
	}
	if err := s.initializeSchema(); err != nil {
		return nil, err
	}
	if err := s.loadColumnCache(context.Background()); err != nil {
		return nil, err
	}
	s.log.Info("Truth store initialized", "columns", len(s.columnCache))
	return s, nil
}

func (s *sqlStore) initializeSchema() error {
	defs := make([]string, 0, len(types.BaseColumns))
	for _, col := range types.BaseColumns {
		switch col {
		case types.ColSN:
			defs = append(defs, fmt.Sprintf("%s %s", quoteIdent(col), s.dialect.snColumnDef()))
		case types.ColEmail:
			defs = append(defs, fmt.Sprintf("%s TEXT UNIQUE NOT NULL", quoteIdent(col)))
		case types.ColUpdatedAt:
			defs = append(defs, fmt.Sprintf("%s TEXT NOT NULL", quoteIdent(col)))
		default:
			defs = append(defs, fmt.Sprintf("%s TEXT", quoteIdent(col)))
		}
	}
	createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(tableName), strings.Join(defs, ", "))
	if err := s.db.Exec(createSQL).Error; err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	indexes := []struct{ name, col string }{
		{"idx_truth_email", types.ColEmail},
		{"idx_truth_company", types.ColCompanyName},
		{"idx_truth_updated", types.ColUpdatedAt},
	}
	for _, idx := range indexes {
		sql := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", quoteIdent(idx.name), quoteIdent(tableName), quoteIdent(idx.col))
		if err := s.db.Exec(sql).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

func (s *sqlStore) loadColumnCache(ctx context.Context) error {
	cols, err := s.Columns(ctx)
	if err != nil {
		return fmt.Errorf("load column cache: %w", err)
	}
	s.columnCache = make(map[string]bool, len(cols))
	for _, c := range cols {
		s.columnCache[c] = true
	}
	return nil
}

func (s *sqlStore) Columns(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).Raw(s.dialect.columnListSQL()).Scan(&names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

func (s *sqlStore) EnsureColumns(ctx context.Context, cols []string) error {
	var missing []string
	for _, col := range cols {
		if !s.columnCache[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	s.log.Info("Adding new extension columns", "count", len(missing))
	for _, col := range missing {
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", quoteIdent(tableName), quoteIdent(col))
		if err := s.db.WithContext(ctx).Exec(sql).Error; err != nil {
			if s.dialect.isDuplicateColumnErr(err) {
				s.columnCache[col] = true
				continue
			}
			return fmt.Errorf("add column %q: %w", col, err)
		}
		s.columnCache[col] = true
		s.log.Debug("Added column", "column", col)
	}
	return nil
}

func (s *sqlStore) Get(ctx context.Context, email string) (types.Record, int64, bool, error) {
	var rows []map[string]any
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", quoteIdent(tableName), quoteIdent(types.ColEmail))
	if err := s.db.WithContext(ctx).Raw(sql, email).Scan(&rows).Error; err != nil {
		return nil, 0, false, err
	}
	if len(rows) == 0 {
		return nil, 0, false, nil
	}
	rec, sn := rowToRecord(rows[0])
	return rec, sn, true, nil
}

func (s *sqlStore) Insert(ctx context.Context, rec types.Record) (int64, error) {
	cols := make([]string, 0, len(rec))
	for col := range rec {
		if col == types.ColSN {
			continue
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
		marks[i] = "?"
		args[i] = rec[col]
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(tableName), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	selectSQL := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		quoteIdent(types.ColSN), quoteIdent(tableName), quoteIdent(types.ColEmail))

	var sn int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(insertSQL, args...).Error; err != nil {
			return err
		}
		return tx.Raw(selectSQL, rec[types.ColEmail]).Scan(&sn).Error
	})
	if err != nil {
		return 0, err
	}
	s.log.Debug("Inserted new record", "sn", sn)
	return sn, nil
}

func (s *sqlStore) Update(ctx context.Context, sn int64, rec types.Record) error {
	cols := make([]string, 0, len(rec))
	for col := range rec {
		if col == types.ColSN {
			continue
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = ?", quoteIdent(col))
		args = append(args, rec[col])
	}
	args = append(args, sn)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quoteIdent(tableName), strings.Join(sets, ", "), quoteIdent(types.ColSN))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Exec(sql, args...).Error
	})
	if err != nil {
		return err
	}
	s.log.Debug("Updated record", "sn", sn)
	return nil
}

func (s *sqlStore) Search(ctx context.Context, filters map[string]string, limit, offset int) ([]types.Record, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var clauses []string
	var args []any
	cols := make([]string, 0, len(filters))
	for col := range filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		val := strings.TrimSpace(filters[col])
		if val == "" {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s LIKE ?", quoteIdent(col)))
		args = append(args, "%"+val+"%")
	}
	whereSQL := ""
	if len(clauses) > 0 {
		whereSQL = "WHERE " + strings.Join(clauses, " AND ")
	}

	var total int64
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", quoteIdent(tableName), whereSQL)
	if err := s.db.WithContext(ctx).Raw(countSQL, args...).Scan(&total).Error; err != nil {
		return nil, 0, err
	}

	querySQL := fmt.Sprintf("SELECT * FROM %s %s ORDER BY %s ASC LIMIT ? OFFSET ?",
		quoteIdent(tableName), whereSQL, quoteIdent(types.ColSN))
	queryArgs := append(append([]any{}, args...), limit, offset)

	var rows []map[string]any
	if err := s.db.WithContext(ctx).Raw(querySQL, queryArgs...).Scan(&rows).Error; err != nil {
		return nil, 0, err
	}
	records := make([]types.Record, len(rows))
	for i, row := range rows {
		rec, _ := rowToRecord(row)
		records[i] = rec
	}
	s.log.Debug("Search complete", "returned", len(records), "total", total, "offset", offset)
	return records, total, nil
}

func (s *sqlStore) Stats(ctx context.Context) (Statistics, error) {
	stats := Statistics{ByLeadSource: map[string]int64{}}

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(tableName))
	if err := s.db.WithContext(ctx).Raw(countSQL).Scan(&stats.TotalRecords).Error; err != nil {
		return stats, err
	}

	type sourceCount struct {
		Source string `gorm:"column:source"`
		Cnt    int64  `gorm:"column:cnt"`
	}
	var sources []sourceCount
	sourceSQL := fmt.Sprintf("SELECT %s AS source, COUNT(*) AS cnt FROM %s GROUP BY %s",
		quoteIdent(types.ColLeadSource), quoteIdent(tableName), quoteIdent(types.ColLeadSource))
	if err := s.db.WithContext(ctx).Raw(sourceSQL).Scan(&sources).Error; err != nil {
		return stats, err
	}
	for _, sc := range sources {
		stats.ByLeadSource[sc.Source] = sc.Cnt
	}

	// UPDATE AS ON holds UTC ISO-8601 strings, so lexicographic comparison
	// against a cutoff string is correct in both dialects.
	cutoff := time.Now().UTC().AddDate(0, 0, -7).Format(TimestampLayout)
	recentSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s >= ?", quoteIdent(tableName), quoteIdent(types.ColUpdatedAt))
	if err := s.db.WithContext(ctx).Raw(recentSQL, cutoff).Scan(&stats.RecentUpdates7Days).Error; err != nil {
		return stats, err
	}

	cols, err := s.Columns(ctx)
	if err != nil {
		return stats, err
	}
	stats.TotalColumns = len(cols)
	return stats, nil
}

func (s *sqlStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(val string) string {
	return "'" + strings.ReplaceAll(val, "'", "''") + "'"
}

func rowToRecord(row map[string]any) (types.Record, int64) {
	rec := make(types.Record, len(row))
	var sn int64
	for col, val := range row {
		if col == types.ColSN {
			sn = toInt64(val)
			rec[col] = fmt.Sprintf("%d", sn)
			continue
		}
		rec[col] = toString(val)
	}
	return rec, sn
}

func toString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toInt64(val any) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
