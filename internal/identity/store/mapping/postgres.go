package mapping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/pgerr"
	"roster/pkg/platform/sentinel"
	txcontext "roster/pkg/platform/tx"
)

// PostgresStore persists source mappings in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed mapping store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) conn(ctx context.Context) txcontext.Executor {
	return txcontext.Conn(ctx, s.db)
}

func (s *PostgresStore) Find(ctx context.Context, key models.MappingKey) (*models.SourceMapping, error) {
	query := `
		SELECT athlete_uuid, created_at
		FROM source_mappings
		WHERE source_system = $1 AND source_athlete_id = $2
	`
	m := models.SourceMapping{SourceSystem: key.SourceSystem, SourceAthleteID: key.SourceAthleteID}
	var athleteID uuid.UUID
	err := s.conn(ctx).QueryRowContext(ctx, query, string(key.SourceSystem), key.SourceAthleteID).Scan(&athleteID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("mapping %s/%s: %w", key.SourceSystem, key.SourceAthleteID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find mapping: %w", err)
	}
	m.AthleteID = id.AthleteID(athleteID)
	return &m, nil
}

// FindBySystem resolves many source identifiers at once. Identifiers without
// a mapping are absent from the result.
func (s *PostgresStore) FindBySystem(ctx context.Context, system models.SourceSystem, sourceIDs []string) (map[string]id.AthleteID, error) {
	out := make(map[string]id.AthleteID, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT source_athlete_id, athlete_uuid
		FROM source_mappings
		WHERE source_system = $1 AND source_athlete_id = ANY($2)
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, string(system), pq.Array(sourceIDs))
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sourceID  string
			athleteID uuid.UUID
		)
		if err := rows.Scan(&sourceID, &athleteID); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out[sourceID] = id.AthleteID(athleteID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mappings: %w", err)
	}
	return out, nil
}

// Save inserts m unless its key already exists, and returns the stored
// mapping. An existing mapping always wins over the new one.
func (s *PostgresStore) Save(ctx context.Context, m *models.SourceMapping) (*models.SourceMapping, error) {
	query := `
		INSERT INTO source_mappings (source_system, source_athlete_id, athlete_uuid, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_system, source_athlete_id) DO NOTHING
	`
	res, err := s.conn(ctx).ExecContext(ctx, query,
		string(m.SourceSystem),
		m.SourceAthleteID,
		uuid.UUID(m.AthleteID),
		m.CreatedAt,
	)
	if err != nil {
		if pgerr.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("mapping references missing athlete %s: %w", m.AthleteID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("insert mapping: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		saved := *m
		return &saved, nil
	}
	return s.Find(ctx, m.Key())
}

func (s *PostgresStore) ListByAthlete(ctx context.Context, athleteID id.AthleteID) ([]*models.SourceMapping, error) {
	query := `
		SELECT source_system, source_athlete_id, created_at
		FROM source_mappings
		WHERE athlete_uuid = $1
		ORDER BY source_system, source_athlete_id
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, uuid.UUID(athleteID))
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()

	var out []*models.SourceMapping
	for rows.Next() {
		m := models.SourceMapping{AthleteID: athleteID}
		var system string
		if err := rows.Scan(&system, &m.SourceAthleteID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		m.SourceSystem = models.SourceSystem(system)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mappings: %w", err)
	}
	return out, nil
}

// Repoint moves every mapping of from onto to and returns the number moved.
func (s *PostgresStore) Repoint(ctx context.Context, from, to id.AthleteID) (int, error) {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE source_mappings SET athlete_uuid = $2 WHERE athlete_uuid = $1`,
		uuid.UUID(from), uuid.UUID(to))
	if err != nil {
		return 0, fmt.Errorf("repoint mappings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
