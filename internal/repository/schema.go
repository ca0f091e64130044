package repository

// Schema definitions for the claimrisk database.
// Compatible with both SQLite and PostgreSQL. Instants used in range
// queries are stored as unix milliseconds so both drivers compare them
// numerically.

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    id TEXT PRIMARY KEY,
    claimant_id TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    claimed_at BIGINT NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claims_claimant ON claims(claimant_id, claimed_at);
CREATE INDEX IF NOT EXISTS idx_claims_provider ON claims(provider_id);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    threshold REAL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// schemaAnalyses is the append-only audit log of completed analyses.
const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    claim_id TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    overall_score REAL NOT NULL,
    analyzed_at BIGINT NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_claim ON analyses(claim_id, analyzed_at);
CREATE INDEX IF NOT EXISTS idx_analyses_level ON analyses(risk_level);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaClaims,
		schemaRuleConfigs,
		schemaAnalyses,
	}
}
