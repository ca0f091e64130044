package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrClaimNotFound is returned when the claim store has no such claim.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrClaimExists is returned when a claim id is submitted twice.
	ErrClaimExists = errors.New("claim already exists")

	// ErrAnalysisNotFound is returned when no cached analysis exists.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrInvalidRequest marks caller errors.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidClaim marks a claim that violates its invariants.
	ErrInvalidClaim = fmt.Errorf("%w: invalid claim", ErrInvalidRequest)
)
