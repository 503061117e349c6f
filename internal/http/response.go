package http

import (
	"net/http"
	"time"
)

// TimingInfo holds the phases of one request as seen by httptrace.
type TimingInfo struct {
	StartTime       time.Time
	TCPConnect      time.Duration
	TLSHandshake    time.Duration
	TimeToFirstByte time.Duration
	ContentTransfer time.Duration
	Total           time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Timing     TimingInfo
}

// IsSuccess returns true if the response status code is in the 2xx range
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DurationMillis returns the total request time in fractional milliseconds.
func (r *Response) DurationMillis() float64 {
	return float64(r.Duration) / float64(time.Millisecond)
}
