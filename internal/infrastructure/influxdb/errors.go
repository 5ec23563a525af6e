package influxdb

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
)

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers run without telemetry.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrNotConnected means the client was closed or never connected.
	ErrNotConnected = fmt.Errorf("%w: influxdb not connected", apperr.TransientIOError)

	// ErrConnectionFailed means the startup ping failed.
	ErrConnectionFailed = fmt.Errorf("%w: influxdb connection failed", apperr.TransientIOError)
)
