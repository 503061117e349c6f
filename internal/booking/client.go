// Package booking drives the bulk-waste booking service: its HTTP API,
// request payloads, the shared token pool and the load scenarios built on
// top of them.
package booking

import (
	"context"
	"net/url"

	bhttp "github.com/wesleyorama2/bookload/internal/http"
)

// Staff actions accepted by the transition endpoint.
const (
	ActionAssign   = "assign"
	ActionStart    = "start"
	ActionComplete = "complete"
)

// StaffActions lists the transitions in lifecycle order.
var StaffActions = []string{ActionAssign, ActionStart, ActionComplete}

// API is a thin client over the booking endpoints. Request names are the
// tags of the http_* sub-metrics.
type API struct {
	client *bhttp.Client
}

// NewAPI wraps an instrumented client whose base URL points at the API root,
// e.g. http://localhost:8080/api.
func NewAPI(client *bhttp.Client) *API {
	return &API{client: client}
}

// CreateBooking posts a new booking. 201 and 409 are both expected.
func (a *API) CreateBooking(ctx context.Context, name string, req *Request) (*bhttp.Response, error) {
	r := bhttp.NewRequest("POST", "/bookings").
		Named(name).
		Expect(201, 409).
		WithBody(req)
	return a.client.Do(ctx, r)
}

// GetBookingByToken looks a booking up by its access token. 404 is expected
// for unknown tokens.
func (a *API) GetBookingByToken(ctx context.Context, name, token string) (*bhttp.Response, error) {
	r := bhttp.NewRequest("GET", "/bookings/token/"+url.PathEscape(token)).
		Named(name).
		Expect(200, 404)
	return a.client.Do(ctx, r)
}

// StaffTransition applies a staff action to a booking. 400 is expected for
// invalid transitions.
func (a *API) StaffTransition(ctx context.Context, name, token, action string) (*bhttp.Response, error) {
	r := bhttp.NewRequest("PUT", "/staff/bookings/token/"+url.PathEscape(token)+"/"+action).
		Named(name).
		Expect(200, 400)
	return a.client.Do(ctx, r)
}

// ListStaffBookings fetches every booking.
func (a *API) ListStaffBookings(ctx context.Context, name string) (*bhttp.Response, error) {
	return a.client.Do(ctx, bhttp.NewRequest("GET", "/staff/bookings").Named(name))
}

// DashboardSummary fetches the staff dashboard aggregates.
func (a *API) DashboardSummary(ctx context.Context, name string) (*bhttp.Response, error) {
	return a.client.Do(ctx, bhttp.NewRequest("GET", "/staff/dashboard/summary").Named(name))
}
