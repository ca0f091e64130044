package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Claim is an insurance claim as submitted for analysis.
// Claims are immutable once stored.
type Claim struct {
	// Identifiers
	ID           string `json:"claim_id"`
	PolicyNumber string `json:"policy_number,omitempty"`
	ClaimantID   string `json:"claimant_id" validate:"required"`
	ClaimantName string `json:"claimant_name,omitempty"`
	ProviderID   string `json:"provider_id" validate:"required"`
	ProviderName string `json:"provider_name,omitempty"`
	BrokerID     string `json:"broker_id,omitempty"`

	// Financial details
	ClaimAmount decimal.Decimal `json:"claim_amount"`
	Currency    string          `json:"currency,omitempty" validate:"omitempty,len=3"`

	// Temporal
	ClaimDate           *time.Time `json:"claim_date,omitempty"`
	PolicyInceptionDate *time.Time `json:"policy_inception_date,omitempty"`

	// Medical coding
	TreatmentCode string `json:"treatment_code,omitempty"`
	DiagnosisCode string `json:"diagnosis_code,omitempty"`

	// Geography
	Location         *Location `json:"location,omitempty"`
	ProviderLocation *Location `json:"provider_location,omitempty"`

	// Supporting data
	Documents         []string          `json:"documents,omitempty"`
	LineItems         []LineItem        `json:"line_items,omitempty"`
	HistoricalAmounts []decimal.Decimal `json:"historical_amounts,omitempty"`
	RelatedAmounts    []decimal.Decimal `json:"related_amounts,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Location is a district with optional coordinates.
type Location struct {
	District  string   `json:"district,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l *Location) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// LineItem is a single billed item on a claim.
type LineItem struct {
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// Validate checks the invariants a claim must satisfy before it is stored.
func (c *Claim) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: claim_id is required", ErrInvalidClaim)
	}
	if !c.ClaimAmount.IsPositive() {
		return fmt.Errorf("%w: claim_amount must be positive", ErrInvalidClaim)
	}
	return nil
}

// AmountFloat returns the claim amount as a float64 for numeric features.
func (c *Claim) AmountFloat() float64 {
	f, _ := c.ClaimAmount.Float64()
	return f
}

// DaysSinceInception returns whole days between policy inception and the
// claim date. ok is false when either date is missing.
func (c *Claim) DaysSinceInception() (days int, ok bool) {
	if c.ClaimDate == nil || c.PolicyInceptionDate == nil {
		return 0, false
	}
	d := c.ClaimDate.Sub(*c.PolicyInceptionDate)
	days = int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		// floor, matching calendar-day differences for negative spans
		days--
	}
	return days, true
}

// ReferenceTime is the instant the claim is placed at on a timeline: the
// claim date when known, otherwise the time it was recorded.
func (c *Claim) ReferenceTime() time.Time {
	if c.ClaimDate != nil {
		return *c.ClaimDate
	}
	return c.CreatedAt
}
