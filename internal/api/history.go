package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/history"
)

// dateOnly is accepted alongside RFC 3339 for dateFrom and dateTo.
const dateOnly = "2006-01-02"

// handleListHistory returns one page of sensor history.
//
// Query parameters:
//   - page, limit: paging (defaults 1 and 10, limit capped at 100)
//   - deviceId, triggerType, lightStatus, lightAction, fanStatus, fanAction
//   - dateFrom, dateTo: RFC 3339 or YYYY-MM-DD, bounds on detectedAt
//   - search: case-insensitive match on the device name
//   - sortOrder: asc or desc (default desc)
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	filter, err := parseHistoryFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	page, err := s.history.List(r.Context(), s.db, filter)
	if err != nil {
		s.writeDomainError(w, r, err, "listing history")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// parseHistoryFilter maps query parameters onto a filter. Enum values are
// checked later by Filter.Normalize.
func parseHistoryFilter(q url.Values) (history.Filter, error) {
	f := history.Filter{
		DeviceID:    q.Get("deviceId"),
		TriggerType: history.Trigger(q.Get("triggerType")),
		LightStatus: history.Status(q.Get("lightStatus")),
		LightAction: history.Action(q.Get("lightAction")),
		FanStatus:   history.Status(q.Get("fanStatus")),
		FanAction:   history.Action(q.Get("fanAction")),
		Search:      q.Get("search"),
		SortOrder:   history.SortOrder(q.Get("sortOrder")),
	}

	var err error
	if f.Page, err = intParam(q, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = intParam(q, "limit"); err != nil {
		return f, err
	}
	if f.DateFrom, err = timeParam(q, "dateFrom", false); err != nil {
		return f, err
	}
	if f.DateTo, err = timeParam(q, "dateTo", true); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

// timeParam parses an RFC 3339 timestamp or a bare date. A bare dateTo
// covers the whole day.
func timeParam(q url.Values, name string, endOfDay bool) (*time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC 3339 or YYYY-MM-DD", name)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
