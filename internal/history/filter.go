package history

import (
	"fmt"
	"strings"
)

// Normalize applies paging defaults and checks enum fields.
func (f Filter) Normalize() (Filter, error) {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}

	f.SortOrder = SortOrder(strings.ToLower(string(f.SortOrder)))
	switch f.SortOrder {
	case "":
		f.SortOrder = SortDesc
	case SortAsc, SortDesc:
	default:
		return f, fmt.Errorf("%w: sortOrder must be asc or desc", ErrInvalidFilter)
	}

	if f.TriggerType != "" && !f.TriggerType.Valid() {
		return f, fmt.Errorf("%w: unknown triggerType %q", ErrInvalidFilter, f.TriggerType)
	}
	for name, s := range map[string]Status{"lightStatus": f.LightStatus, "fanStatus": f.FanStatus} {
		if s != "" && s != StatusOn && s != StatusOff {
			return f, fmt.Errorf("%w: %s must be on or off", ErrInvalidFilter, name)
		}
	}
	for name, a := range map[string]Action{"lightAction": f.LightAction, "fanAction": f.FanAction} {
		if a != "" && a != ActionTurnedOn && a != ActionTurnedOff {
			return f, fmt.Errorf("%w: %s must be turned_on or turned_off", ErrInvalidFilter, name)
		}
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return f, fmt.Errorf("%w: dateTo is before dateFrom", ErrInvalidFilter)
	}

	f.Search = strings.TrimSpace(f.Search)
	return f, nil
}

// offset is the row offset of the filter's page.
func (f Filter) offset() int {
	return (f.Page - 1) * f.Limit
}

// totalPages rounds up; zero rows means zero pages.
func totalPages(total, limit int) int {
	if total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// likePattern escapes s for a LIKE ... ESCAPE '\' substring match.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}
