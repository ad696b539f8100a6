package webhook

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyTarget = errors.New("webhook target is empty")
	ErrBadTarget   = errors.New("webhook target must be an absolute http(s) URL")
)

type Kind int

const (
	KindNetwork Kind = iota + 1
	KindStatus
	KindDestination
	KindPayload
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStatus:
		return "status"
	case KindDestination:
		return "destination"
	case KindPayload:
		return "payload"
	default:
		return "unknown"
	}
}

// DeliveryError describes why a payload did not reach the webhook.
// Target never contains the URL path.
type DeliveryError struct {
	Kind       Kind
	Target     string
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Kind == KindStatus && e.Body != "":
		return fmt.Sprintf("webhook %s: %s: HTTP %d: %s", e.Kind, e.Target, e.StatusCode, e.Body)
	case e.Kind == KindStatus:
		return fmt.Sprintf("webhook %s: %s: HTTP %d", e.Kind, e.Target, e.StatusCode)
	case e.Target != "":
		return fmt.Sprintf("webhook %s: %s: %v", e.Kind, e.Target, e.Err)
	default:
		return fmt.Sprintf("webhook %s: %v", e.Kind, e.Err)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// KindOf returns the kind of a *DeliveryError in err's chain, or 0.
func KindOf(err error) Kind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}
