package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/priora/internal/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLStore is a Repository over SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLite opens (creating if needed) a SQLite database file and migrates it.
func NewSQLite(dbPath string) (*SQLStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return newSQLStore(db, DriverSQLite)
}

// NewPostgres connects to PostgreSQL and migrates the schema.
func NewPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return newSQLStore(db, DriverPostgres)
}

func newSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *SQLStore) migrate() error {
	ts := "DATETIME"
	if s.dialect == DriverPostgres {
		ts = "TIMESTAMPTZ"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			main_task_name TEXT NOT NULL,
			main_task_difficulty INTEGER NOT NULL,
			description TEXT NOT NULL,
			vector TEXT,
			category TEXT NOT NULL DEFAULT 'general',
			position INTEGER NOT NULL DEFAULT 0,
			prediction_method TEXT NOT NULL,
			system_estimate INTEGER NOT NULL,
			user_estimate INTEGER NOT NULL,
			actual_time INTEGER,
			confidence TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'scheduled',
			created_at ` + ts + ` NOT NULL,
			completed_at ` + ts + `,
			time_allocation_at ` + ts + `
		)`,
		`CREATE TABLE IF NOT EXISTS accuracy_logs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			mae DOUBLE PRECISION NOT NULL,
			accuracy_5min DOUBLE PRECISION NOT NULL,
			training_size INTEGER NOT NULL,
			training_date ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			inputs_hash TEXT NOT NULL,
			outcome TEXT NOT NULL,
			user_id TEXT,
			details TEXT,
			timestamp ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			task_name TEXT NOT NULL,
			days_left INTEGER NOT NULL,
			priority TEXT NOT NULL,
			final_score DOUBLE PRECISION NOT NULL,
			data TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_records_user_status ON task_records(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_task_records_user_desc ON task_records(user_id, description)`,
		`CREATE INDEX IF NOT EXISTS idx_accuracy_logs_user ON accuracy_logs(user_id, training_date)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_user ON decisions(user_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_priority ON analyses(priority, final_score)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_days_left ON analyses(days_left)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// --- Task Records ---

const recordColumns = `id, user_id, main_task_name, main_task_difficulty, description, vector, category, position,
	prediction_method, system_estimate, user_estimate, actual_time, confidence, status,
	created_at, completed_at, time_allocation_at`

// InsertTask inserts a new task record.
func (s *SQLStore) InsertTask(ctx context.Context, rec *models.TaskRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedDate.IsZero() {
		rec.CreatedDate = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = models.TaskStatusScheduled
	}

	vector, err := json.Marshal(rec.Subtask.Vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO task_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.UserID, rec.MainTask.Name, rec.MainTask.Difficulty,
		rec.Subtask.Description, string(vector), rec.Subtask.Category, rec.Subtask.Position,
		string(rec.Estimates.PredictionMethod), rec.Estimates.SystemEstimate, rec.Estimates.UserEstimate,
		nullInt(rec.Estimates.ActualTime), string(rec.Estimates.Confidence), string(rec.Status),
		rec.CreatedDate.UTC(), nullTime(rec.CompletedDate), nullTime(rec.TimeAllocationDate),
	)
	if err != nil {
		return fmt.Errorf("insert task record: %w", err)
	}
	return nil
}

// FindCompleted returns the user's completed records that carry an actual time.
func (s *SQLStore) FindCompleted(ctx context.Context, userID string) ([]models.TaskRecord, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM task_records
		WHERE user_id = ? AND status = ? AND actual_time IS NOT NULL
		ORDER BY created_at, position, id`,
		userID, string(models.TaskStatusCompleted),
	)
}

// ListTasks returns a user's records, optionally filtered by status.
func (s *SQLStore) ListTasks(ctx context.Context, userID string, status models.TaskStatus) ([]models.TaskRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM task_records WHERE user_id = ?`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, position, id`
	return s.queryRecords(ctx, query, args...)
}

// GetTask retrieves a record by ID.
func (s *SQLStore) GetTask(ctx context.Context, id string) (*models.TaskRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+recordColumns+` FROM task_records WHERE id = ?`), id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task record: %w", err)
	}
	return rec, nil
}

// CompleteTask marks the oldest scheduled record matching the user and
// description as completed. The subquery and the status guard run as one
// statement, so concurrent callers complete a record at most once.
func (s *SQLStore) CompleteTask(ctx context.Context, userID, description string, actualTime int, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.rebind(`UPDATE task_records
		SET actual_time = ?, status = ?, completed_at = ?
		WHERE id = (
			SELECT id FROM task_records
			WHERE user_id = ? AND description = ? AND status = ?
			ORDER BY created_at, position, id
			LIMIT 1
		) AND status = ?`),
		actualTime, string(models.TaskStatusCompleted), at.UTC(),
		userID, description, string(models.TaskStatusScheduled),
		string(models.TaskStatusScheduled),
	)
	if err != nil {
		return false, fmt.Errorf("complete task record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (s *SQLStore) queryRecords(ctx context.Context, query string, args ...interface{}) ([]models.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query task records: %w", err)
	}
	defer rows.Close()

	var records []models.TaskRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*models.TaskRecord, error) {
	var (
		rec                        models.TaskRecord
		vector                     sql.NullString
		method, confidence, status string
		actual                     sql.NullInt64
		completedAt, allocationAt  sql.NullTime
	)

	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.MainTask.Name, &rec.MainTask.Difficulty,
		&rec.Subtask.Description, &vector, &rec.Subtask.Category, &rec.Subtask.Position,
		&method, &rec.Estimates.SystemEstimate, &rec.Estimates.UserEstimate, &actual,
		&confidence, &status, &rec.CreatedDate, &completedAt, &allocationAt,
	)
	if err != nil {
		return nil, err
	}

	if vector.Valid && vector.String != "" && vector.String != "null" {
		if err := json.Unmarshal([]byte(vector.String), &rec.Subtask.Vector); err != nil {
			return nil, fmt.Errorf("decode vector for %s: %w", rec.ID, err)
		}
	}
	rec.Estimates.PredictionMethod = models.PredictionMethod(method)
	rec.Estimates.Confidence = models.Confidence(confidence)
	rec.Status = models.TaskStatus(status)
	if actual.Valid {
		v := int(actual.Int64)
		rec.Estimates.ActualTime = &v
	}
	if completedAt.Valid {
		rec.CompletedDate = &completedAt.Time
	}
	if allocationAt.Valid {
		rec.TimeAllocationDate = &allocationAt.Time
	}
	return &rec, nil
}

// --- Accuracy Logs ---

// InsertAccuracy appends an accuracy snapshot.
func (s *SQLStore) InsertAccuracy(ctx context.Context, log *models.AccuracyLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.TrainingDate.IsZero() {
		log.TrainingDate = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO accuracy_logs (id, user_id, mae, accuracy_5min, training_size, training_date) VALUES (?, ?, ?, ?, ?, ?)`),
		log.ID, log.UserID, log.MAE, log.AccuracyWithin5Min, log.TrainingSize, log.TrainingDate.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert accuracy log: %w", err)
	}
	return nil
}

// LatestAccuracy returns the newest accuracy log for a user.
func (s *SQLStore) LatestAccuracy(ctx context.Context, userID string) (*models.AccuracyLog, error) {
	log := &models.AccuracyLog{}
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, user_id, mae, accuracy_5min, training_size, training_date
		FROM accuracy_logs WHERE user_id = ?
		ORDER BY training_date DESC, id DESC LIMIT 1`),
		userID,
	).Scan(&log.ID, &log.UserID, &log.MAE, &log.AccuracyWithin5Min, &log.TrainingSize, &log.TrainingDate)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query accuracy log: %w", err)
	}
	return log, nil
}

// --- Decisions ---

// WriteDecision records an audit entry.
func (s *SQLStore) WriteDecision(ctx context.Context, rec *models.DecisionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO decisions (id, action, inputs_hash, outcome, user_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.Action, rec.InputsHash, rec.Outcome, rec.UserID, rec.Details, rec.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// ListDecisions returns the most recent decisions, newest first.
func (s *SQLStore) ListDecisions(ctx context.Context, userID string, limit int) ([]models.DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, action, inputs_hash, outcome, user_id, details, timestamp FROM decisions`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []models.DecisionRecord
	for rows.Next() {
		var d models.DecisionRecord
		var userID, details sql.NullString
		if err := rows.Scan(&d.ID, &d.Action, &d.InputsHash, &d.Outcome, &userID, &details, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.UserID = userID.String
		d.Details = details.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- Analyses ---

// InsertAnalysis saves an analyzed task. The full analysis is kept as JSON;
// the filtered and sorted fields are also stored as columns.
func (s *SQLStore) InsertAnalysis(ctx context.Context, a *models.Analysis) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO analyses (id, user_id, task_name, days_left, priority, final_score, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.UserID, a.TaskName, a.DaysLeft, a.Priority, a.Score.Final, string(data), a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// ListAnalyses returns saved analyses matching the filter.
func (s *SQLStore) ListAnalyses(ctx context.Context, f AnalysisFilter) ([]models.Analysis, error) {
	query := `SELECT id, data, created_at FROM analyses WHERE 1 = 1`
	var args []interface{}
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, f.Priority)
	}
	if f.MaxDaysLeft != nil {
		query += ` AND days_left <= ?`
		args = append(args, *f.MaxDaysLeft)
	}
	switch {
	case f.MaxDaysLeft != nil:
		query += ` ORDER BY days_left, final_score DESC, created_at DESC, id`
	case f.Priority != "":
		query += ` ORDER BY final_score DESC, created_at DESC, id`
	default:
		query += ` ORDER BY created_at DESC, id`
	}
	query += ` LIMIT ?`
	args = append(args, f.limit())

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var out []models.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetAnalysis retrieves a saved analysis by ID.
func (s *SQLStore) GetAnalysis(ctx context.Context, id string) (*models.Analysis, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, data, created_at FROM analyses WHERE id = ?`), id)
	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query analysis: %w", err)
	}
	return a, nil
}

// DeleteAnalysis removes a saved analysis.
func (s *SQLStore) DeleteAnalysis(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM analyses WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("delete analysis: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// AnalysisStats counts saved analyses per priority label.
func (s *SQLStore) AnalysisStats(ctx context.Context, userID string) (*models.AnalysisStats, error) {
	query := `SELECT priority, COUNT(*) FROM analyses`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` GROUP BY priority`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query analysis stats: %w", err)
	}
	defer rows.Close()

	stats := &models.AnalysisStats{}
	for rows.Next() {
		var (
			priority string
			n        int
		)
		if err := rows.Scan(&priority, &n); err != nil {
			return nil, fmt.Errorf("scan analysis stats: %w", err)
		}
		stats.Add(priority, n)
	}
	return stats, rows.Err()
}

func scanAnalysis(row scanner) (*models.Analysis, error) {
	var (
		id, data  string
		createdAt time.Time
	)
	if err := row.Scan(&id, &data, &createdAt); err != nil {
		return nil, err
	}

	a := &models.Analysis{}
	if err := json.Unmarshal([]byte(data), a); err != nil {
		return nil, fmt.Errorf("decode analysis %s: %w", id, err)
	}
	a.ID = id
	a.CreatedAt = createdAt
	return a, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
