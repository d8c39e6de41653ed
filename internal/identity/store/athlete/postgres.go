package athlete

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/pgerr"
	"roster/pkg/platform/sentinel"
	txcontext "roster/pkg/platform/tx"
)

// PostgresStore persists canonical athletes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed athlete store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var (
	baseColumns = []string{
		"athlete_uuid", "display_name", "normalized_name", "date_of_birth", "age",
		"age_at_collection", "gender", "height", "weight", "notes",
		"source_system", "source_athlete_id", "created_at", "updated_at",
	}
	selectColumns = strings.Join(append(append([]string{}, baseColumns...), domainColumns()...), ", ")
)

// domainColumns lists flag and count columns in registry order.
func domainColumns() []string {
	var cols []string
	for _, d := range models.Domains() {
		cols = append(cols, d.FlagColumn, d.CountColumn)
	}
	return cols
}

func (s *PostgresStore) conn(ctx context.Context) txcontext.Executor {
	return txcontext.Conn(ctx, s.db)
}

func (s *PostgresStore) Create(ctx context.Context, a *models.Athlete) error {
	if a == nil {
		return fmt.Errorf("athlete is required")
	}
	query := `
		INSERT INTO athletes (
			athlete_uuid, display_name, normalized_name, date_of_birth, age,
			age_at_collection, gender, height, weight, notes,
			source_system, source_athlete_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(a.ID),
		a.DisplayName,
		a.NormalizedName,
		a.DateOfBirth,
		a.Age,
		a.AgeAtCollection,
		a.Gender,
		a.Height,
		a.Weight,
		a.Notes,
		string(a.SourceSystem),
		a.SourceAthleteID,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if pgerr.IsUniqueViolation(err) {
			return fmt.Errorf("insert athlete %s: %w", a.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert athlete: %w", err)
	}
	return nil
}

// Update writes the mutable demographic and name fields. Domain stats are
// written by SetDomainStats only.
func (s *PostgresStore) Update(ctx context.Context, a *models.Athlete) error {
	query := `
		UPDATE athletes SET
			display_name = $2,
			normalized_name = $3,
			date_of_birth = $4,
			age = $5,
			age_at_collection = $6,
			gender = $7,
			height = $8,
			weight = $9,
			notes = $10,
			updated_at = $11
		WHERE athlete_uuid = $1
	`
	res, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(a.ID),
		a.DisplayName,
		a.NormalizedName,
		a.DateOfBirth,
		a.Age,
		a.AgeAtCollection,
		a.Gender,
		a.Height,
		a.Weight,
		a.Notes,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update athlete: %w", err)
	}
	return requireRow(res, a.ID)
}

func (s *PostgresStore) FindByID(ctx context.Context, athleteID id.AthleteID) (*models.Athlete, error) {
	query := `SELECT ` + selectColumns + ` FROM athletes WHERE athlete_uuid = $1`
	a, err := scanAthlete(s.conn(ctx).QueryRowContext(ctx, query, uuid.UUID(athleteID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("athlete %s: %w", athleteID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find athlete: %w", err)
	}
	return a, nil
}

// FindByNormalizedName returns all athletes sharing the key, earliest first.
func (s *PostgresStore) FindByNormalizedName(ctx context.Context, normalized string) ([]*models.Athlete, error) {
	query := `SELECT ` + selectColumns + `
		FROM athletes
		WHERE normalized_name = $1
		ORDER BY created_at, athlete_uuid`
	return s.queryAthletes(ctx, query, normalized)
}

// SearchByName returns every athlete whose display or normalized name
// contains fragment, case-insensitively, earliest first. Results are not
// capped here: callers rank by similarity before truncating.
func (s *PostgresStore) SearchByName(ctx context.Context, fragment string) ([]*models.Athlete, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, nil
	}
	query := `SELECT ` + selectColumns + `
		FROM athletes
		WHERE display_name ILIKE '%' || $1 || '%'
		   OR normalized_name ILIKE '%' || $1 || '%'
		ORDER BY created_at, athlete_uuid`
	return s.queryAthletes(ctx, query, escapeLike(fragment))
}

// List returns the given athletes, or all athletes when ids is nil, earliest first.
func (s *PostgresStore) List(ctx context.Context, ids []id.AthleteID) ([]*models.Athlete, error) {
	if ids == nil {
		return s.queryAthletes(ctx, `SELECT `+selectColumns+` FROM athletes ORDER BY created_at, athlete_uuid`)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, athleteID := range ids {
		raw[i] = athleteID.String()
	}
	query := `SELECT ` + selectColumns + `
		FROM athletes
		WHERE athlete_uuid = ANY($1::uuid[])
		ORDER BY created_at, athlete_uuid`
	return s.queryAthletes(ctx, query, pq.Array(raw))
}

func (s *PostgresStore) Delete(ctx context.Context, athleteID id.AthleteID) error {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM athletes WHERE athlete_uuid = $1`, uuid.UUID(athleteID))
	if err != nil {
		if pgerr.IsForeignKeyViolation(err) {
			return fmt.Errorf("delete athlete %s still referenced: %w", athleteID, sentinel.ErrInvalidState)
		}
		return fmt.Errorf("delete athlete: %w", err)
	}
	return requireRow(res, athleteID)
}

// SetDomainStats writes one domain's summary columns. Column names come from
// the validated domain registry.
func (s *PostgresStore) SetDomainStats(ctx context.Context, athleteID id.AthleteID, system models.SourceSystem, stats models.DomainStats) error {
	d, err := models.LookupDomain(system)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE athletes SET %s = $2, %s = $3 WHERE athlete_uuid = $1`, d.FlagColumn, d.CountColumn)
	res, err := s.conn(ctx).ExecContext(ctx, query, uuid.UUID(athleteID), stats.HasData, stats.SessionCount)
	if err != nil {
		return fmt.Errorf("set %s stats: %w", system, err)
	}
	return requireRow(res, athleteID)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM athletes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count athletes: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) queryAthletes(ctx context.Context, query string, args ...any) ([]*models.Athlete, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query athletes: %w", err)
	}
	defer rows.Close()

	var out []*models.Athlete
	for rows.Next() {
		a, err := scanAthlete(rows)
		if err != nil {
			return nil, fmt.Errorf("scan athlete: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate athletes: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAthlete(row scanner) (*models.Athlete, error) {
	var (
		a            models.Athlete
		athleteID    uuid.UUID
		system       string
		dob          sql.NullTime
		age, ageAt   sql.NullFloat64
		height, wt   sql.NullFloat64
		gender, note sql.NullString
	)
	registered := models.Domains()
	flags := make([]bool, len(registered))
	counts := make([]int, len(registered))

	dest := []any{
		&athleteID, &a.DisplayName, &a.NormalizedName, &dob, &age,
		&ageAt, &gender, &height, &wt, &note,
		&system, &a.SourceAthleteID, &a.CreatedAt, &a.UpdatedAt,
	}
	for i := range registered {
		dest = append(dest, &flags[i], &counts[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	a.ID = id.AthleteID(athleteID)
	a.SourceSystem = models.SourceSystem(system)
	if dob.Valid {
		t := dob.Time
		a.DateOfBirth = &t
	}
	a.Age = nullFloat(age)
	a.AgeAtCollection = nullFloat(ageAt)
	a.Height = nullFloat(height)
	a.Weight = nullFloat(wt)
	a.Gender = nullString(gender)
	a.Notes = nullString(note)
	a.Domains = make(map[models.SourceSystem]models.DomainStats, len(registered))
	for i, d := range registered {
		a.Domains[d.System] = models.DomainStats{HasData: flags[i], SessionCount: counts[i]}
	}
	return &a, nil
}

func requireRow(res sql.Result, athleteID id.AthleteID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("athlete %s: %w", athleteID, sentinel.ErrNotFound)
	}
	return nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
