// Package domain defines the core interfaces and types for claimrisk.
package domain

import (
	"context"
	"time"
)

// ClaimStore is the read side of claim persistence used by the analysis path.
type ClaimStore interface {
	GetClaim(ctx context.Context, claimID string) (*Claim, error)
}

// Repository defines the interface for data persistence.
type Repository interface {
	ClaimStore

	// Claim operations
	SaveClaim(ctx context.Context, claim *Claim) error
	ListClaimsByClaimant(ctx context.Context, claimantID string, before time.Time) ([]*Claim, error)
	CountClaimsInWindow(ctx context.Context, claimantID, excludeClaimID string, from, to time.Time) (int, error)
	ProviderStats(ctx context.Context, providerID string) (ProviderStats, error)

	// Rule configuration operations
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Analysis audit log
	SaveAnalysis(ctx context.Context, result *AnalysisResult) error
	ListAnalyses(ctx context.Context, claimID string) ([]*AnalysisResult, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ProviderStats is the raw aggregate the store computes for a provider.
type ProviderStats struct {
	TotalClaims   int
	AnalyzedCount int
	FlaggedCount  int // analyses at high or critical level
	AvgScore      float64
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `koanf:"driver" json:"driver"`

	// SQLite specific
	SQLitePath string `koanf:"sqlite_path" json:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `koanf:"postgres_host" json:"postgresHost"`
	PostgresPort     int    `koanf:"postgres_port" json:"postgresPort"`
	PostgresUser     string `koanf:"postgres_user" json:"postgresUser"`
	PostgresPassword string `koanf:"postgres_password" json:"-"`
	PostgresDB       string `koanf:"postgres_db" json:"postgresDb"`
	PostgresSSLMode  string `koanf:"postgres_sslmode" json:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `koanf:"max_open_conns" json:"maxOpenConns"`
	MaxIdleConns    int           `koanf:"max_idle_conns" json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" json:"connMaxLifetime"`
}
