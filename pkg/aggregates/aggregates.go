package aggregates

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/recordstack/entitystore/common/logger"
	"github.com/recordstack/entitystore/pkg/datamapper"
	"github.com/recordstack/entitystore/pkg/definition"
	"github.com/recordstack/entitystore/pkg/entity"
)

// EntityMapper is the slice of the data mapper the updater needs to
// load and re-save rollup targets
type EntityMapper interface {
	GetByID(ctx context.Context, objType, id string) (*entity.Entity, error)
	GetByGUID(ctx context.Context, guid string) (*entity.Entity, error)
	Save(ctx context.Context, ent *entity.Entity, userID string) (string, error)
}

// Updater recomputes declared rollups (sum, avg, count, min, max) on
// referenced entities whenever a source entity is saved
type Updater struct {
	mapper EntityMapper
	store  datamapper.Store
	log    *logger.Logger

	// inProgress guards against rollup saves re-triggering rollups
	inProgress bool
}

// NewUpdater creates an aggregate updater
func NewUpdater(mapper EntityMapper, store datamapper.Store, log *logger.Logger) *Updater {
	return &Updater{mapper: mapper, store: store, log: log}
}

// OnSave recomputes every aggregate the saved entity's definition
// declares
func (u *Updater) OnSave(ctx context.Context, ent *entity.Entity, userID string) error {
	def := ent.Definition()
	if len(def.Aggregates) == 0 || u.inProgress {
		return nil
	}

	u.inProgress = true
	defer func() { u.inProgress = false }()

	for _, agg := range def.Aggregates {
		refID := ent.GetValueString(agg.RefField)
		if refID == "" {
			continue
		}

		target, err := u.loadTarget(ctx, def.GetField(agg.RefField), refID)
		if err != nil {
			return err
		}
		if target == nil {
			continue
		}

		siblings, err := u.store.QueryByFieldValues(ctx, def.ObjType, map[string]any{
			agg.RefField: refID,
		})
		if err != nil {
			return fmt.Errorf("failed to query %s rows for aggregate %s: %w", def.ObjType, agg.CalcField, err)
		}

		value := compute(agg.Type, agg.Field, siblings)
		if err := target.SetValue(agg.CalcField, value); err != nil {
			return err
		}
		if _, err := u.mapper.Save(ctx, target, userID); err != nil {
			return fmt.Errorf("failed to save aggregate target %s: %w", refID, err)
		}
	}
	return nil
}

// loadTarget resolves the rollup target by guid, or by legacy id when
// the reference field's subtype names the target type
func (u *Updater) loadTarget(ctx context.Context, refField *definition.Field, refID string) (*entity.Entity, error) {
	switch {
	case isGUID(refID):
		return u.mapper.GetByGUID(ctx, refID)
	case refField != nil && refField.Subtype != "":
		return u.mapper.GetByID(ctx, refField.Subtype, refID)
	default:
		u.log.Warn("cannot resolve aggregate target", "ref", refID)
		return nil, nil
	}
}

func compute(aggType, field string, rows []*entity.Entity) any {
	if aggType == "count" {
		return int64(len(rows))
	}

	var (
		sum   float64
		min   float64
		max   float64
		count int
	)
	for _, row := range rows {
		raw := row.GetValueString(field)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if count == 0 {
			min, max = v, v
		} else {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		sum += v
		count++
	}

	switch aggType {
	case "sum":
		return sum
	case "avg":
		if count == 0 {
			return float64(0)
		}
		return sum / float64(count)
	case "min":
		return min
	case "max":
		return max
	}
	return nil
}

func isGUID(id string) bool {
	return uuid.Validate(id) == nil
}
