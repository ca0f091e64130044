// Package rules provides the claim rule engine: a registered battery of
// built-in checks plus custom CEL rules loaded from the rule store.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// Engine evaluates registered rules in order. Built-in rules run first in
// registration order, followed by custom rules ordered by ID.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	rules         []Rule
	compiledRules map[string]*CompiledRule
}

// NewEngine creates an engine with the given rules registered.
func NewEngine(rules ...Rule) (*Engine, error) {
	env, err := newClaimEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}
	for _, r := range rules {
		if err := e.Register(r); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Register appends a rule to the evaluation order.
func (e *Engine) Register(r Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.rules {
		if existing.ID() == r.ID() {
			return fmt.Errorf("rule %s already registered", r.ID())
		}
	}
	if _, ok := e.compiledRules[r.ID()]; ok {
		return fmt.Errorf("rule %s already loaded as custom rule", r.ID())
	}
	e.rules = append(e.rules, r)
	return nil
}

// Evaluate runs every rule against the claim and returns the flags of the
// rules that fired, in evaluation order. It does not modify the claim and
// always runs the full battery; rules are in-memory predicates, so ctx is
// not consulted.
func (e *Engine) Evaluate(_ context.Context, claim *domain.Claim) []domain.RuleFlag {
	ordered := e.snapshot()

	flags := make([]domain.RuleFlag, 0, len(ordered))
	for _, r := range ordered {
		if flag, ok := r.Check(claim); ok {
			flags = append(flags, flag)
		}
	}
	return flags
}

// snapshot returns the current evaluation order.
func (e *Engine) snapshot() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ordered := make([]Rule, 0, len(e.rules)+len(e.compiledRules))
	ordered = append(ordered, e.rules...)

	ids := make([]string, 0, len(e.compiledRules))
	for id := range e.compiledRules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		ordered = append(ordered, e.compiledRules[id])
	}
	return ordered
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a custom rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.rules {
		if r.ID() == cfg.ID {
			return fmt.Errorf("rule %s conflicts with a built-in rule", cfg.ID)
		}
	}

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	if cfg.Enabled {
		e.compiledRules[cfg.ID] = compiled
	} else {
		delete(e.compiledRules, cfg.ID)
	}
	return nil
}

// ReloadRules clears all custom rules and loads new ones.
// Built-in rules are unaffected.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// RuleInfo describes an active rule.
type RuleInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
}

// Rules lists active rules in evaluation order.
func (e *Engine) Rules() []RuleInfo {
	ordered := e.snapshot()
	out := make([]RuleInfo, 0, len(ordered))
	for _, r := range ordered {
		_, custom := r.(*CompiledRule)
		out = append(out, RuleInfo{ID: r.ID(), Name: r.Name(), Custom: custom})
	}
	return out
}

// RulesCount returns the number of active rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules) + len(e.compiledRules)
}

// Close drops custom rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if strings.TrimSpace(cfg.Expression) == "" {
		return nil, fmt.Errorf("rule %s: expression is required", cfg.ID)
	}
	if !cfg.Severity.Valid() {
		return nil, fmt.Errorf("rule %s: invalid severity %q", cfg.ID, cfg.Severity)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
		log:     slog.Default().With("rule_id", cfg.ID),
	}, nil
}
