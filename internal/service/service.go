// Package service implements the rule operations behind the HTTP API:
// create, read, modify, delete, combine, evaluate and export.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/TimurManjosov/gorules/internal/engine"
	"github.com/TimurManjosov/gorules/internal/events"
	"github.com/TimurManjosov/gorules/internal/interop"
	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/TimurManjosov/gorules/internal/snapshot"
	"github.com/TimurManjosov/gorules/internal/store"
	"github.com/TimurManjosov/gorules/internal/telemetry"
	"github.com/google/cel-go/cel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Export formats.
const (
	FormatJSONLogic = "jsonlogic"
	FormatCEL       = "cel"
)

// Evaluation engines. Native is the built-in short-circuit evaluator; the
// others run the exported JSON Logic or CEL form of the rule.
const (
	EngineNative    = "native"
	EngineJSONLogic = "jsonlogic"
	EngineCEL       = "cel"
)

// Options configures a Service. Nil fields get working defaults.
type Options struct {
	Schema   *rules.Schema
	Snapshot *snapshot.Holder
	Events   events.Publisher
	// Strategy is the combine connective used when a request names none.
	Strategy rules.Connective
	Logger   zerolog.Logger
}

// Service composes the parser, schema, store, evaluator, snapshot and
// event publisher.
type Service struct {
	store    store.Store
	schema   *rules.Schema
	eval     *engine.Evaluator
	snap     *snapshot.Holder
	events   events.Publisher
	strategy rules.Connective
	log      zerolog.Logger

	// programs caches compiled CEL programs by rule id.
	programs sync.Map
}

type celProgram struct {
	ruleString string
	prg        cel.Program
}

// New creates a Service over st.
func New(st store.Store, opts Options) *Service {
	if opts.Snapshot == nil {
		opts.Snapshot = snapshot.NewHolder()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Strategy == "" {
		opts.Strategy = rules.Or
	}
	return &Service{
		store:    st,
		schema:   opts.Schema,
		eval:     engine.New(opts.Schema),
		snap:     opts.Snapshot,
		events:   opts.Events,
		strategy: opts.Strategy,
		log:      opts.Logger.With().Str("component", "service").Logger(),
	}
}

// Combined is the result of combining rules. ID is set only when the
// result was saved.
type Combined struct {
	ID         string
	RuleString string
	AST        rules.Node
}

// Snapshot returns the holder of the current rule list.
func (s *Service) Snapshot() *snapshot.Holder { return s.snap }

// Schema returns the attribute schema, possibly nil.
func (s *Service) Schema() *rules.Schema { return s.schema }

// Refresh rebuilds the rule-list snapshot from the store.
func (s *Service) Refresh(ctx context.Context) error {
	snap, err := s.snap.Refresh(ctx, s.store)
	if err != nil {
		return fmt.Errorf("refresh snapshot: %w", err)
	}
	telemetry.RulesStored.Set(float64(len(snap.Rules)))
	return nil
}

// Create parses and schema-checks ruleString, then stores its canonical
// form under a new id.
func (s *Service) Create(ctx context.Context, ruleString string) (*store.Rule, error) {
	node, err := s.prepare("create", ruleString)
	if err != nil {
		return nil, err
	}
	created, err := s.store.Create(ctx, store.Rule{
		ID:         uuid.NewString(),
		RuleString: rules.Format(node),
		AST:        node,
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, created.ID, nil, created)
	return created, nil
}

// Get returns one rule.
func (s *Service) Get(ctx context.Context, id string) (*store.Rule, error) {
	return s.store.Get(ctx, id)
}

// List returns every rule in insertion order.
func (s *Service) List(ctx context.Context) ([]store.Rule, error) {
	return s.store.List(ctx)
}

// Modify replaces the rule string and tree of an existing rule. The new
// string is parsed and checked before the store is touched, so a bad
// string leaves the rule unchanged.
func (s *Service) Modify(ctx context.Context, id, ruleString string) (*store.Rule, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: rule id is required", rules.ErrValidation)
	}
	node, err := s.prepare("modify", ruleString)
	if err != nil {
		return nil, err
	}
	before, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Update(ctx, store.Rule{
		ID:         id,
		RuleString: rules.Format(node),
		AST:        node,
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, id, before, updated)
	return updated, nil
}

// Delete removes a rule.
func (s *Service) Delete(ctx context.Context, id string) error {
	before, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.programs.Delete(id)
	s.afterWrite(ctx, id, before, nil)
	return nil
}

// Combine merges ruleStrings under strategy ("AND"/"OR", empty for the
// configured default). Nothing is stored.
func (s *Service) Combine(ctx context.Context, ruleStrings []string, strategy string) (*Combined, error) {
	conn := s.strategy
	if strings.TrimSpace(strategy) != "" {
		c, ok := rules.ParseConnective(strategy)
		if !ok {
			return nil, fmt.Errorf("%w: combine operator %q is not supported", rules.ErrValidation, strategy)
		}
		conn = c
	}

	node, err := rules.CombineStrings(ruleStrings, conn)
	if err != nil {
		if errors.Is(err, rules.ErrSyntax) {
			telemetry.ParseFailures.WithLabelValues("combine").Inc()
		}
		return nil, err
	}
	if err := s.schema.CheckRule(node); err != nil {
		return nil, err
	}
	return &Combined{RuleString: rules.Format(node), AST: node}, nil
}

// CombineAndSave combines ruleStrings and stores the result as a new rule.
// The input rules are not affected.
func (s *Service) CombineAndSave(ctx context.Context, ruleStrings []string, strategy string) (*Combined, error) {
	combined, err := s.Combine(ctx, ruleStrings, strategy)
	if err != nil {
		return nil, err
	}
	created, err := s.store.Create(ctx, store.Rule{
		ID:         uuid.NewString(),
		RuleString: combined.RuleString,
		AST:        combined.AST,
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, created.ID, nil, created)
	combined.ID = created.ID
	return combined, nil
}

// Evaluate runs the stored rule id against rec. With explain set the
// result carries the evaluation trace.
func (s *Service) Evaluate(ctx context.Context, id string, rec rules.Record, explain bool) (*engine.EvaluationResult, error) {
	rule, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var res engine.EvaluationResult
	if explain {
		res, err = s.eval.EvaluateWithTrace(rule.AST, rec)
	} else {
		res.Result, err = s.eval.Evaluate(rule.AST, rec)
	}
	telemetry.ObserveEvaluation(res.Result, err)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// EvaluateWithEngine runs the stored rule id against rec on the named
// engine. An empty name selects the native evaluator. JSON Logic and CEL
// evaluate every condition, so rec must hold every attribute the rule
// names, with kinds that fit; violations fail the same way the native
// evaluator reports them.
func (s *Service) EvaluateWithEngine(ctx context.Context, id string, rec rules.Record, engineName string) (*engine.EvaluationResult, error) {
	name := strings.ToLower(strings.TrimSpace(engineName))
	if name == "" || name == EngineNative {
		return s.Evaluate(ctx, id, rec, false)
	}
	if name != EngineJSONLogic && name != EngineCEL {
		return nil, fmt.Errorf("%w: engine %q is not supported (use %s, %s or %s)",
			rules.ErrValidation, engineName, EngineNative, EngineJSONLogic, EngineCEL)
	}

	rule, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.eval.CheckAll(rule.AST, rec); err != nil {
		telemetry.ObserveEvaluation(false, err)
		return nil, err
	}

	var ok bool
	if name == EngineJSONLogic {
		ok, err = interop.EvaluateJSONLogic(rule.AST, rec)
	} else {
		var prg cel.Program
		if prg, err = s.celProgram(rule); err == nil {
			ok, err = interop.EvaluateCEL(prg, rec)
		}
	}
	telemetry.ObserveEvaluation(ok, err)
	if err != nil {
		s.log.Error().Err(err).Str("rule_id", id).Str("engine", name).Msg("evaluation failed")
		return nil, err
	}
	return &engine.EvaluationResult{Result: ok}, nil
}

// celProgram returns the compiled program for rule, recompiling when the
// rule string changed since it was cached.
func (s *Service) celProgram(rule *store.Rule) (cel.Program, error) {
	if v, ok := s.programs.Load(rule.ID); ok {
		if cp := v.(celProgram); cp.ruleString == rule.RuleString {
			return cp.prg, nil
		}
	}
	prg, err := interop.CompileCEL(rule.AST, s.schema)
	if err != nil {
		return nil, err
	}
	s.programs.Store(rule.ID, celProgram{ruleString: rule.RuleString, prg: prg})
	return prg, nil
}

// Export renders a stored rule as a JSON Logic document (map[string]any)
// or a type-checked CEL expression (string).
func (s *Service) Export(ctx context.Context, id, format string) (any, error) {
	rule, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSONLogic, "":
		return interop.ToJSONLogic(rule.AST)
	case FormatCEL:
		if _, err := interop.CompileCEL(rule.AST, s.schema); err != nil {
			return nil, err
		}
		return interop.ToCEL(rule.AST), nil
	default:
		return nil, fmt.Errorf("%w: export format %q is not supported (use %s or %s)",
			rules.ErrValidation, format, FormatJSONLogic, FormatCEL)
	}
}

// prepare parses and schema-checks a rule string. Syntax errors are
// reported as validation errors that still unwrap to the *SyntaxError.
func (s *Service) prepare(op, ruleString string) (rules.Node, error) {
	node, err := rules.Parse(ruleString)
	if err != nil {
		telemetry.ParseFailures.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("%w: %w", rules.ErrValidation, err)
	}
	if err := s.schema.CheckRule(node); err != nil {
		return nil, err
	}
	return node, nil
}

// afterWrite refreshes the snapshot and publishes the change event. A
// failed refresh is logged; the write itself already succeeded.
func (s *Service) afterWrite(ctx context.Context, id string, before, after *store.Rule) {
	if err := s.Refresh(ctx); err != nil {
		s.log.Error().Err(err).Str("rule_id", id).Msg("snapshot refresh failed")
	}
	s.events.Publish(events.NewEventBuilder(ctx).ForRule(id).WithStates(before, after).Build())
}
