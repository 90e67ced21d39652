package postgres

import (
	"context"
	"fmt"

	coreerrors "folio-core/internal/core/errors"
	corelog "folio-core/internal/core/log"
)

// viewTables maps a subject type to the table holding its view_count column
var viewTables = map[string]string{
	"series":  "series",
	"chapter": "chapters",
}

// ViewCounts adds flushed view deltas to the catalog tables
type ViewCounts struct {
	db     Querier
	logger corelog.Logger
}

// NewViewCounts creates the flush target
func NewViewCounts(db Querier, logger corelog.Logger) *ViewCounts {
	return &ViewCounts{db: db, logger: corelog.OrDefault(logger)}
}

// AddViews increments view_count by delta. A missing row is logged and
// skipped so a deleted subject does not make the sync job retry forever.
func (v *ViewCounts) AddViews(ctx context.Context, subjectType, id string, delta int64) error {
	table, ok := viewTables[subjectType]
	if !ok {
		return coreerrors.Validationf("unknown subject type %q", subjectType)
	}
	if delta <= 0 {
		return nil
	}
	sql := fmt.Sprintf(`UPDATE %s SET view_count = view_count + $1 WHERE id = $2`, table)
	tag, err := v.db.Exec(ctx, sql, delta, id)
	if err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeStorageError, "add views to %s %s", subjectType, id)
	}
	if tag.RowsAffected() == 0 {
		v.logger.WithFields(map[string]interface{}{
			"type":  subjectType,
			"id":    id,
			"delta": delta,
		}).Warn("postgres: view target not found, delta dropped")
	}
	return nil
}
