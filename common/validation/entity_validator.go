package validation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/recordstack/entitystore/common/logger"
	"github.com/recordstack/entitystore/pkg/definition"
	"github.com/recordstack/entitystore/pkg/entity"
)

// EntityValidator enforces schema-level rules before a save: required
// fields, readonly protection, and the definition's CEL constraint
// expressions. All violations are aggregated into one error.
type EntityValidator struct {
	env *cel.Env
	log *logger.Logger

	mu       sync.Mutex
	programs map[string][]compiledConstraint
}

type compiledConstraint struct {
	source  string
	program cel.Program
}

// NewEntityValidator creates a validator with a CEL environment
// exposing the entity's field map as `entity`
func NewEntityValidator(log *logger.Logger) (*EntityValidator, error) {
	env, err := cel.NewEnv(
		cel.Variable("entity", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &EntityValidator{
		env:      env,
		log:      log,
		programs: make(map[string][]compiledConstraint),
	}, nil
}

// IsValid checks the entity against its definition for the given
// lifecycle event. Returns a *entity.ValidationError listing every
// failure, or nil when the entity passes.
func (v *EntityValidator) IsValid(ctx context.Context, ent *entity.Entity, event string) error {
	def := ent.Definition()
	verr := &entity.ValidationError{ObjType: def.ObjType}

	for _, f := range def.Fields {
		if f.Required && definition.IsEmptyValue(ent.GetValue(f.Name)) {
			if event == definition.EventCreate || ent.FieldValueChanged(f.Name) {
				verr.Add(fmt.Sprintf("field %q is required", f.Name))
			}
		}

		// System fields are stamped by the engine itself; readonly only
		// guards caller-writable fields
		if f.ReadOnly && !f.System && ent.FieldValueChanged(f.Name) {
			verr.Add(fmt.Sprintf("field %q is read-only", f.Name))
		}
	}

	if len(def.Constraints) > 0 {
		programs, err := v.constraintPrograms(def)
		if err != nil {
			return fmt.Errorf("failed to compile constraints for %q: %w", def.ObjType, err)
		}

		fields := ent.ToArray()
		for _, c := range programs {
			out, _, err := c.program.Eval(map[string]any{"entity": fields})
			if err != nil {
				v.log.Warn("constraint evaluation failed",
					"obj_type", def.ObjType,
					"constraint", c.source,
					"error", err,
				)
				verr.Add(fmt.Sprintf("constraint %q could not be evaluated", c.source))
				continue
			}
			if passed, ok := out.Value().(bool); !ok || !passed {
				verr.Add(fmt.Sprintf("constraint %q not satisfied", c.source))
			}
		}
	}

	if verr.HasViolations() {
		return verr
	}
	return nil
}

// constraintPrograms compiles the definition's CEL constraints once
// per schema revision
func (v *EntityValidator) constraintPrograms(def *definition.EntityDefinition) ([]compiledConstraint, error) {
	key := fmt.Sprintf("%s@%d", def.ObjType, def.Revision)

	v.mu.Lock()
	defer v.mu.Unlock()

	if programs, ok := v.programs[key]; ok {
		return programs, nil
	}

	programs := make([]compiledConstraint, 0, len(def.Constraints))
	for _, src := range def.Constraints {
		ast, iss := v.env.Compile(src)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("constraint %q: %w", src, iss.Err())
		}
		prg, err := v.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("constraint %q: %w", src, err)
		}
		programs = append(programs, compiledConstraint{source: src, program: prg})
	}

	v.programs[key] = programs
	return programs, nil
}
