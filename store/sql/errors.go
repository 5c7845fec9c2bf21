package sqlstore

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/goliatone/go-shopsync/core"
)

// uniqueMarkers are the driver messages for a unique index collision, for
// sqlite3 and lib/pq respectively.
var uniqueMarkers = []string{
	"unique constraint failed",
	"duplicate key value violates unique constraint",
}

func notConfigured(store string) error {
	return core.InternalError(nil, "sqlstore: nil "+store+" store")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	for _, marker := range uniqueMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
