package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/jackc/pgx/v5"
)

// PartitionedTables родительские таблицы, секционированные по месяцам
var PartitionedTables = []string{"appointments", "system_events"}

// ключ секционирования каждой родительской таблицы
var partitionKeys = map[string]string{
	"appointments":  "appointment_date",
	"system_events": "created_at",
}

var boundPattern = regexp.MustCompile(`FROM \('([^']+)'\) TO \('([^']+)'\)`)

// PartitionRepository читает системный каталог и выполняет DDL секций.
// Работает через database/sql поверх того же пула, что и миграции.
type PartitionRepository struct {
	db *sql.DB
}

func NewPartitionRepository(db *sql.DB) *PartitionRepository {
	return &PartitionRepository{db: db}
}

// List возвращает секции указанной таблицы в порядке возрастания диапазона
func (r *PartitionRepository) List(ctx context.Context, parent string) ([]model.Partition, error) {
	query := `
		SELECT c.relname,
		       pg_get_expr(c.relpartbound, c.oid),
		       GREATEST(c.reltuples, 0)::bigint,
		       pg_total_relation_size(c.oid)
		FROM pg_inherits i
		JOIN pg_class c ON c.oid = i.inhrelid
		JOIN pg_class p ON p.oid = i.inhparent
		WHERE p.relname = $1
		ORDER BY c.relname
	`

	rows, err := r.db.QueryContext(ctx, query, parent)
	if err != nil {
		return nil, fmt.Errorf("list partitions of %s: %w", parent, err)
	}
	defer rows.Close()

	var partitions []model.Partition
	for rows.Next() {
		var (
			p     model.Partition
			bound string
		)
		if err := rows.Scan(&p.Name, &bound, &p.RowCount, &p.SizeBytes); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		p.ParentTable = parent
		if err := parseBound(&p, bound); err != nil {
			return nil, err
		}
		partitions = append(partitions, p)
	}

	return partitions, rows.Err()
}

// parseBound разбирает выражение вида FOR VALUES FROM ('2025-06-01') TO ('2025-07-01')
func parseBound(p *model.Partition, bound string) error {
	if bound == "DEFAULT" {
		p.IsDefault = true
		return nil
	}

	m := boundPattern.FindStringSubmatch(bound)
	if m == nil {
		return fmt.Errorf("unexpected partition bound %q for %s", bound, p.Name)
	}

	start, err := parseBoundValue(m[1])
	if err != nil {
		return fmt.Errorf("parse lower bound of %s: %w", p.Name, err)
	}
	end, err := parseBoundValue(m[2])
	if err != nil {
		return fmt.Errorf("parse upper bound of %s: %w", p.Name, err)
	}

	p.RangeStart = start
	p.RangeEnd = end
	return nil
}

func parseBoundValue(v string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05-07", "2006-01-02 15:04:05-07:00"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported bound value %q", v)
}

// Create создаёт месячную секцию, если её ещё нет.
// Строки этого диапазона, попавшие в секцию по умолчанию, переносятся в новую секцию в той же транзакции,
// иначе PostgreSQL отклоняет PARTITION OF из-за нарушения ограничения DEFAULT.
func (r *PartitionRepository) Create(ctx context.Context, parent, name string, from, to time.Time) error {
	lo, hi := boundLiteral(parent, from), boundLiteral(parent, to)
	table := pgx.Identifier{parent}.Sanitize()
	part := pgx.Identifier{name}.Sanitize()
	def := pgx.Identifier{DefaultPartitionName(parent)}.Sanitize()
	key := pgx.Identifier{partitionKeys[parent]}.Sanitize()
	inRange := fmt.Sprintf("%s >= '%s' AND %s < '%s'", key, lo, key, hi)
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')", part, table, lo, hi)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create %s: %w", name, err)
	}
	defer tx.Rollback()

	var stranded bool
	if err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s)", def, inRange)).Scan(&stranded); err != nil {
		return fmt.Errorf("check default partition of %s: %w", parent, err)
	}

	if !stranded {
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("create partition %s: %w", name, err)
		}
		return tx.Commit()
	}

	// секции не наследуют RLS родителя, поэтому строки переносятся напрямую между секциями
	steps := []struct {
		what  string
		query string
	}{
		{"detach default partition", fmt.Sprintf("ALTER TABLE %s DETACH PARTITION %s", table, def)},
		{"create partition", create},
		{"move rows", fmt.Sprintf("INSERT INTO %s SELECT * FROM %s WHERE %s", part, def, inRange)},
		{"delete moved rows", fmt.Sprintf("DELETE FROM %s WHERE %s", def, inRange)},
		{"attach default partition", fmt.Sprintf("ALTER TABLE %s ATTACH PARTITION %s DEFAULT", table, def)},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query); err != nil {
			return fmt.Errorf("%s for %s: %w", step.what, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit partition %s: %w", name, err)
	}
	return nil
}

// boundLiteral: appointments секционирована по date, system_events по timestamptz
func boundLiteral(parent string, t time.Time) string {
	if parent == "appointments" {
		return t.Format("2006-01-02")
	}
	return t.UTC().Format("2006-01-02 15:04:05") + "+00"
}

// Retire отсоединяет секцию от родителя и удаляет её в одной транзакции
func (r *PartitionRepository) Retire(ctx context.Context, parent, name string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin retire %s: %w", name, err)
	}
	defer tx.Rollback()

	detach := fmt.Sprintf("ALTER TABLE %s DETACH PARTITION %s",
		pgx.Identifier{parent}.Sanitize(), pgx.Identifier{name}.Sanitize())
	if _, err := tx.ExecContext(ctx, detach); err != nil {
		return fmt.Errorf("detach partition %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return fmt.Errorf("drop partition %s: %w", name, err)
	}

	return tx.Commit()
}

// DefaultPartitionName имя секции по умолчанию, создаваемой миграциями
func DefaultPartitionName(parent string) string {
	return parent + "_default"
}

// PartitionName имя месячной секции: appointments_y2025m06
func PartitionName(parent string, month time.Time) string {
	return fmt.Sprintf("%s_y%04dm%02d", parent, month.Year(), int(month.Month()))
}
