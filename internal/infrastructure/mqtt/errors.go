package mqtt

import (
	"fmt"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
)

// Broker failures are transient; callers may retry once the link is back.
var (
	ErrNotConnected      = fmt.Errorf("%w: mqtt client not connected", apperr.TransientIOError)
	ErrConnectionFailed  = fmt.Errorf("%w: mqtt connection failed", apperr.TransientIOError)
	ErrPublishFailed     = fmt.Errorf("%w: mqtt publish failed", apperr.TransientIOError)
	ErrSubscribeFailed   = fmt.Errorf("%w: mqtt subscribe failed", apperr.TransientIOError)
	ErrUnsubscribeFailed = fmt.Errorf("%w: mqtt unsubscribe failed", apperr.TransientIOError)
)

// Caller mistakes and malformed device traffic.
var (
	ErrInvalidQoS     = fmt.Errorf("%w: mqtt QoS must be 0, 1 or 2", apperr.ValidationError)
	ErrInvalidTopic   = fmt.Errorf("%w: mqtt topic", apperr.ValidationError)
	ErrInvalidPayload = fmt.Errorf("%w: mqtt payload", apperr.ValidationError)
)
