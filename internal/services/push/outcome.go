package push

import "net/http"

// Outcome classifies a single send attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransient
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// Classify maps a push service response to an outcome. A non-nil err means no
// response was received.
func Classify(status int, err error) Outcome {
	if err != nil {
		return OutcomeTransient
	}
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusNotFound, status == http.StatusGone:
		return OutcomePermanent
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return OutcomePermanent
	default:
		return OutcomeTransient
	}
}
