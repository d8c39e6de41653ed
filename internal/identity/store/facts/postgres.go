package facts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
	txcontext "roster/pkg/platform/tx"
)

// PostgresStore reads and re-keys rows of the per-domain fact tables. It only
// ever touches the athlete_uuid column and the registered session column.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Stats counts an athlete's fact rows and distinct sessions in one domain.
func (s *PostgresStore) Stats(ctx context.Context, d models.Domain, athleteID id.AthleteID) (models.DomainStats, error) {
	sessions := "COUNT(*)"
	if d.SessionColumn != "" {
		sessions = fmt.Sprintf("COUNT(DISTINCT %s)", d.SessionColumn)
	}
	query := fmt.Sprintf(`SELECT COUNT(*), %s FROM %s WHERE athlete_uuid = $1`, sessions, d.FactTable)

	var rows, sessionCount int
	err := txcontext.Conn(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(athleteID)).Scan(&rows, &sessionCount)
	if err != nil {
		return models.DomainStats{}, fmt.Errorf("count %s rows: %w", d.FactTable, err)
	}
	return models.DomainStats{HasData: rows > 0, SessionCount: sessionCount}, nil
}

// Repoint moves every fact row of from onto to and returns the count moved.
func (s *PostgresStore) Repoint(ctx context.Context, d models.Domain, from, to id.AthleteID) (int, error) {
	query := fmt.Sprintf(`UPDATE %s SET athlete_uuid = $2 WHERE athlete_uuid = $1`, d.FactTable)
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query, uuid.UUID(from), uuid.UUID(to))
	if err != nil {
		return 0, fmt.Errorf("repoint %s: %w", d.FactTable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Insert adds a fact row. Fact tables are owned by the domain parsers; this
// exists for seeding and tests.
func (s *PostgresStore) Insert(ctx context.Context, d models.Domain, athleteID id.AthleteID, session string) error {
	var (
		query string
		args  = []any{uuid.UUID(athleteID)}
	)
	if d.SessionColumn != "" {
		query = fmt.Sprintf(`INSERT INTO %s (athlete_uuid, %s) VALUES ($1, $2)`, d.FactTable, d.SessionColumn)
		args = append(args, session)
	} else {
		query = fmt.Sprintf(`INSERT INTO %s (athlete_uuid) VALUES ($1)`, d.FactTable)
	}
	if _, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s row: %w", d.FactTable, err)
	}
	return nil
}
