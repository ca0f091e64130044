// Package repository persists claims, custom rule configurations and the
// analysis audit log in SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

var _ domain.Repository = (*SQLRepository)(nil)

// New creates a new repository based on configuration and applies the schema.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveClaim stores a claim. Claims are immutable: a second save of the
// same id fails with domain.ErrClaimExists.
func (r *SQLRepository) SaveClaim(ctx context.Context, claim *domain.Claim) error {
	if claim == nil || claim.ID == "" {
		return fmt.Errorf("%w: claim id is required", ErrInvalidInput)
	}
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}

	query := `
		INSERT INTO claims (id, claimant_id, provider_id, amount, claimed_at, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		claim.ID, claim.ClaimantID, claim.ProviderID,
		claim.ClaimAmount.String(), claim.ReferenceTime().UnixMilli(),
		string(payload), claim.CreatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrClaimExists, claim.ID)
	}
	return nil
}

// GetClaim retrieves a claim by ID.
func (r *SQLRepository) GetClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT payload FROM claims WHERE id = ?`), claimID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrClaimNotFound, claimID)
	}
	if err != nil {
		return nil, err
	}
	return decodeClaim(payload)
}

// ListClaimsByClaimant returns the claimant's claims placed strictly
// before the given instant, oldest first.
func (r *SQLRepository) ListClaimsByClaimant(ctx context.Context, claimantID string, before time.Time) ([]*domain.Claim, error) {
	query := `
		SELECT payload
		FROM claims
		WHERE claimant_id = ? AND claimed_at < ?
		ORDER BY claimed_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), claimantID, before.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		c, err := decodeClaim(payload)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// CountClaimsInWindow counts the claimant's claims in [from, to], other
// than excludeClaimID.
func (r *SQLRepository) CountClaimsInWindow(ctx context.Context, claimantID, excludeClaimID string, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM claims
		WHERE claimant_id = ?
		  AND id <> ?
		  AND claimed_at >= ?
		  AND claimed_at <= ?
	`

	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query),
		claimantID, excludeClaimID, from.UnixMilli(), to.UnixMilli(),
	).Scan(&count)
	return count, err
}

// ProviderStats aggregates the provider's claims and every recorded
// analysis of them.
func (r *SQLRepository) ProviderStats(ctx context.Context, providerID string) (domain.ProviderStats, error) {
	var stats domain.ProviderStats

	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT COUNT(*) FROM claims WHERE provider_id = ?`), providerID,
	).Scan(&stats.TotalClaims)
	if err != nil {
		return stats, err
	}

	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN a.risk_level IN ('high', 'critical') THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(a.overall_score), 0)
		FROM analyses a
		JOIN claims c ON c.id = a.claim_id
		WHERE c.provider_id = ?
	`
	err = r.db.QueryRowContext(ctx, r.rebind(query), providerID).Scan(
		&stats.AnalyzedCount, &stats.FlaggedCount, &stats.AvgScore,
	)
	return stats, err
}

// SaveRuleConfig inserts or replaces a custom rule configuration.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	var threshold sql.NullFloat64
	if rule.Threshold != nil {
		threshold = sql.NullFloat64{Float64: *rule.Threshold, Valid: true}
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO rule_configs (
			id, name, description, version, expression, severity, threshold, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			severity = excluded.severity,
			threshold = excluded.threshold,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Version,
		rule.Expression, string(rule.Severity), threshold, enabled,
		rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

const ruleColumns = `id, name, description, version, expression, severity, threshold, enabled, created_at, updated_at`

// GetRuleConfig retrieves a rule configuration by ID.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	query := `SELECT ` + ruleColumns + ` FROM rule_configs WHERE id = ?`

	cfg, err := scanRuleConfig(r.db.QueryRowContext(ctx, r.rebind(query), ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cfg, err
}

// ListRuleConfigs returns every stored rule configuration, enabled or not,
// ordered by ID.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `SELECT ` + ruleColumns + ` FROM rule_configs ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		cfg, err := scanRuleConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRuleConfig(row rowScanner) (*domain.RuleConfig, error) {
	var cfg domain.RuleConfig
	var description sql.NullString
	var severity string
	var threshold sql.NullFloat64
	var enabled int

	if err := row.Scan(
		&cfg.ID, &cfg.Name, &description, &cfg.Version,
		&cfg.Expression, &severity, &threshold, &enabled,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}

	cfg.Description = description.String
	cfg.Severity = domain.Severity(severity)
	if threshold.Valid {
		v := threshold.Float64
		cfg.Threshold = &v
	}
	cfg.Enabled = enabled == 1
	return &cfg, nil
}

// SaveAnalysis appends a completed analysis to the audit log.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	if result == nil || result.ClaimID == "" {
		return fmt.Errorf("%w: analysis claim id is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	query := `
		INSERT INTO analyses (id, claim_id, risk_level, overall_score, analyzed_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		uuid.NewString(), result.ClaimID, string(result.RiskScore.RiskLevel),
		result.RiskScore.OverallScore, result.Timestamp.UnixMilli(), string(payload),
	)
	return err
}

// ListAnalyses returns every recorded analysis of a claim, oldest first.
func (r *SQLRepository) ListAnalyses(ctx context.Context, claimID string) ([]*domain.AnalysisResult, error) {
	query := `
		SELECT payload
		FROM analyses
		WHERE claim_id = ?
		ORDER BY analyzed_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.AnalysisResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var res domain.AnalysisResult
		if err := json.Unmarshal([]byte(payload), &res); err != nil {
			return nil, fmt.Errorf("failed to decode analysis: %w", err)
		}
		results = append(results, &res)
	}
	return results, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func decodeClaim(payload string) (*domain.Claim, error) {
	var c domain.Claim
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("failed to decode claim: %w", err)
	}
	return &c, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
