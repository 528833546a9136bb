// Package segment provides the CEL-based customer segment labeling engine.
package segment

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// Engine labels RFM records with customer segments. Segment definitions are
// CEL expressions over the record's metrics; they compile once at load and
// evaluate in priority order, first match wins.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*CompiledSegment
}

// CompiledSegment holds a pre-compiled CEL program.
type CompiledSegment struct {
	Config  *domain.SegmentConfig
	Program cel.Program
}

// NewEngine creates a new segment labeling engine.
func NewEngine() (*Engine, error) {
	// CEL environment exposing the RFM record's metrics
	env, err := cel.NewEnv(
		cel.Variable("recency_days", cel.IntType),
		cel.Variable("frequency", cel.IntType),
		cel.Variable("monetary", cel.DoubleType),
		cel.Variable("r_score", cel.IntType),
		cel.Variable("f_score", cel.IntType),
		cel.Variable("m_score", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env}, nil
}

// ValidateSegment compiles a segment definition without loading it.
func (e *Engine) ValidateSegment(cfg *domain.SegmentConfig) error {
	if cfg == nil {
		return fmt.Errorf("segment config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(cfg)
	return err
}

// LoadSegments compiles the enabled definitions and replaces the loaded set.
// An invalid expression fails the whole load; the previous set stays active.
func (e *Engine) LoadSegments(configs []*domain.SegmentConfig) error {
	compiled := make([]*CompiledSegment, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		cs, err := e.compile(cfg)
		if err != nil {
			return fmt.Errorf("segment %q: %w", cfg.ID, err)
		}
		compiled = append(compiled, cs)
	}

	// Priority order decides which segment wins when several match.
	sort.SliceStable(compiled, func(a, b int) bool {
		return compiled[a].Config.Priority < compiled[b].Config.Priority
	})

	e.mu.Lock()
	e.compiled = compiled
	e.mu.Unlock()

	return nil
}

// Segments returns the loaded definitions in evaluation order.
func (e *Engine) Segments() []*domain.SegmentConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	configs := make([]*domain.SegmentConfig, 0, len(e.compiled))
	for _, cs := range e.compiled {
		configs = append(configs, cs.Config)
	}
	return configs
}

// Label assigns each record the name of the first segment whose expression
// evaluates to true. Records matching no segment keep an empty label. A
// runtime evaluation error skips that segment for that record; expressions
// are validated at load so this only happens for type surprises.
func (e *Engine) Label(records []domain.RFMRecord) {
	e.mu.RLock()
	compiled := e.compiled
	e.mu.RUnlock()

	if len(compiled) == 0 {
		return
	}

	for i := range records {
		rec := &records[i]
		monetary, _ := rec.Monetary.Float64()
		activation := map[string]any{
			"recency_days": int64(rec.RecencyDays),
			"frequency":    int64(rec.Frequency),
			"monetary":     monetary,
			"r_score":      int64(rec.RecencyScore),
			"f_score":      int64(rec.FrequencyScore),
			"m_score":      int64(rec.MonetaryScore),
		}

		for _, cs := range compiled {
			out, _, err := cs.Program.Eval(activation)
			if err != nil {
				continue
			}
			if matched, ok := out.(types.Bool); ok && bool(matched) {
				rec.Segment = cs.Config.Name
				break
			}
		}
	}
}

func (e *Engine) compile(cfg *domain.SegmentConfig) (*CompiledSegment, error) {
	if cfg.Expression == "" {
		return nil, fmt.Errorf("expression is required")
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return &CompiledSegment{Config: cfg, Program: program}, nil
}
