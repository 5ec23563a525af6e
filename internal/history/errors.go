package history

import (
	"fmt"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
)

// ErrInvalidFilter is returned when a query parameter has an unknown value.
var ErrInvalidFilter = fmt.Errorf("%w: history filter", apperr.ValidationError)
