package query

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-shopsync/core"
)

func TestMessagesValidate(t *testing.T) {
	cases := map[string]struct {
		msg   interface{ Validate() error }
		field string
	}{
		"negative page":     {ListEventsMessage{Filter: core.EventFilter{Page: -1}}, "page"},
		"oversized page":    {ListEventsMessage{Filter: core.EventFilter{PerPage: MaxEventsPerPage + 1}}, "per_page"},
		"stats no tenant":   {EventStatsMessage{}, "tenant_id"},
		"stats bad window":  {EventStatsMessage{TenantID: "t1", Days: -7}, "days"},
		"dlq bad limit":     {ListDeadLettersMessage{Limit: -1}, "limit"},
		"webhook no tenant": {ListWebhooksMessage{}, "tenant_id"},
	}
	for name, tc := range cases {
		err := tc.msg.Validate()
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected rich error, got %v", name, err)
		}
		if rich.Code != http.StatusBadRequest || rich.TextCode != core.IngestErrorBadInput {
			t.Fatalf("%s: unexpected envelope %d %s", name, rich.Code, rich.TextCode)
		}
		if fields := rich.AllValidationErrors(); len(fields) == 0 || fields[0].Field != tc.field {
			t.Fatalf("%s: expected field %q, got %#v", name, tc.field, fields)
		}
	}

	if err := (ListEventsMessage{Filter: core.EventFilter{PerPage: MaxEventsPerPage}}).Validate(); err != nil {
		t.Fatalf("expected max page size accepted, got %v", err)
	}
}

func TestNilQueriesReportMissingDependency(t *testing.T) {
	var list *ListEventsQuery
	if _, err := list.Query(context.Background(), ListEventsMessage{}); core.HTTPStatus(err) != http.StatusInternalServerError {
		t.Fatalf("expected internal error, got %v", err)
	}
	var stats *EventStatsQuery
	if _, err := stats.Query(context.Background(), EventStatsMessage{TenantID: "t1"}); core.HTTPStatus(err) != http.StatusInternalServerError {
		t.Fatalf("expected internal error, got %v", err)
	}
}
