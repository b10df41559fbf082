package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation = "23505"

	insertRuleSQL = `
INSERT INTO rules (id, rule_string, ast)
VALUES ($1, $2, $3)
RETURNING id::text, rule_string, ast, created_at, updated_at`

	getRuleSQL = `
SELECT id::text, rule_string, ast, created_at, updated_at
FROM rules
WHERE id = $1`

	listRulesSQL = `
SELECT id::text, rule_string, ast, created_at, updated_at
FROM rules
ORDER BY seq`

	updateRuleSQL = `
UPDATE rules
SET rule_string = $2, ast = $3, updated_at = now()
WHERE id = $1
RETURNING id::text, rule_string, ast, created_at, updated_at`

	deleteRuleSQL = `DELETE FROM rules WHERE id = $1`
)

// PostgresStore is a PostgreSQL implementation of the Store interface.
// The rule string and AST live in one row, so a single UPDATE replaces both.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a new rule. The id must be a UUID.
func (p *PostgresStore) Create(ctx context.Context, rule Rule) (*Rule, error) {
	if err := validateForWrite(rule); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(rule.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: rule id %q is not a UUID", rules.ErrValidation, rule.ID)
	}
	ast, err := rules.EncodeJSON(rule.AST)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule structure: %w", err)
	}

	created, err := scanRule(p.pool.QueryRow(ctx, insertRuleSQL, id.String(), rule.RuleString, ast))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateID
		}
		return nil, err
	}
	return created, nil
}

// Get retrieves a single rule by id. Ids that are not UUIDs cannot exist.
func (p *PostgresStore) Get(ctx context.Context, id string) (*Rule, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRuleNotFound
	}
	rule, err := scanRule(p.pool.QueryRow(ctx, getRuleSQL, uid.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return rule, nil
}

// List returns all rules ordered by insertion sequence.
func (p *PostgresStore) List(ctx context.Context) ([]Rule, error) {
	rows, err := p.pool.Query(ctx, listRulesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update replaces rule_string and ast in a single statement.
func (p *PostgresStore) Update(ctx context.Context, rule Rule) (*Rule, error) {
	if err := validateForWrite(rule); err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(rule.ID)
	if err != nil {
		return nil, ErrRuleNotFound
	}
	ast, err := rules.EncodeJSON(rule.AST)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule structure: %w", err)
	}

	updated, err := scanRule(p.pool.QueryRow(ctx, updateRuleSQL, uid.String(), rule.RuleString, ast))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return updated, nil
}

// Delete removes a rule by id.
func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrRuleNotFound
	}
	tag, err := p.pool.Exec(ctx, deleteRuleSQL, uid.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Close closes the database connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

// scanRule converts one result row into a Rule.
func scanRule(row pgx.Row) (*Rule, error) {
	var (
		rule Rule
		ast  []byte
		cAt  time.Time
		uAt  time.Time
	)
	if err := row.Scan(&rule.ID, &rule.RuleString, &ast, &cAt, &uAt); err != nil {
		return nil, err
	}
	node, err := rules.DecodeNode(ast)
	if err != nil {
		return nil, fmt.Errorf("rule %s: stored structure is invalid: %w", rule.ID, err)
	}
	rule.AST = node
	rule.CreatedAt = cAt.UTC()
	rule.UpdatedAt = uAt.UTC()
	return &rule, nil
}
