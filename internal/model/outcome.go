package model

import "time"

// FailureKind classifies a failed request attempt.
type FailureKind int

const (
	KindHTTPStatus FailureKind = iota + 1
	KindTimeout
	KindTransport
)

func (k FailureKind) String() string {
	switch k {
	case KindHTTPStatus:
		return "http_status"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// TimeoutMessage is the failure message recorded for timed out attempts.
const TimeoutMessage = "timeout"

// Outcome is the terminal result of one row's request lifecycle.
// Exactly one of the success or failure fields is meaningful, selected by OK.
type Outcome struct {
	OK         bool
	StatusCode int // 0 when no HTTP status was received
	Body       any // decoded JSON, or the raw text when the body is not JSON
	Latency    time.Duration
	Kind       FailureKind
	Message    string
	Attempts   int
}

// Success builds a successful outcome.
func Success(status int, body any, latency time.Duration) Outcome {
	return Outcome{OK: true, StatusCode: status, Body: body, Latency: latency}
}

// Failure builds a failed outcome. status is 0 when the failure carries none.
func Failure(kind FailureKind, status int, message string) Outcome {
	return Outcome{Kind: kind, StatusCode: status, Message: message}
}

// ErrorType is the error-stream label for a failed outcome: "http_status" when a
// status code is present, "timeout" for the timeout message, else "exception".
func (o Outcome) ErrorType() string {
	switch {
	case o.StatusCode != 0:
		return "http_status"
	case o.Message == TimeoutMessage:
		return "timeout"
	default:
		return "exception"
	}
}

// LatencySeconds returns the latency rounded to 4 decimal places.
func (o Outcome) LatencySeconds() float64 {
	return RoundLatency(o.Latency)
}
