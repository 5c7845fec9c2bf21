package sync

import (
	"time"

	"github.com/goliatone/go-shopsync/core"
)

type RunReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Skipped    bool
	Tenants    []TenantReport
}

type TenantReport struct {
	TenantID   string
	ShopDomain string
	Entities   []EntityReport
}

type EntityReport struct {
	Entity   core.EntityType
	Pages    int
	Items    int
	Failures int
	// Synced is set when every page was read and the last-sync timestamp
	// moved to the run start time.
	Synced bool
	Error  string
}

func (r RunReport) Items() int {
	total := 0
	for _, tenant := range r.Tenants {
		for _, entity := range tenant.Entities {
			total += entity.Items
		}
	}
	return total
}

func (r RunReport) Failures() int {
	total := 0
	for _, tenant := range r.Tenants {
		for _, entity := range tenant.Entities {
			total += entity.Failures
		}
	}
	return total
}

func (t TenantReport) Entity(entity core.EntityType) (EntityReport, bool) {
	for _, report := range t.Entities {
		if report.Entity == entity {
			return report, true
		}
	}
	return EntityReport{}, false
}
