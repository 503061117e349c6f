package booking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	bhttp "github.com/wesleyorama2/bookload/internal/http"
	"github.com/wesleyorama2/bookload/internal/scenario"
)

// Scenario names.
const (
	ScenarioCreateBooking      = "create_booking"
	ScenarioListBookings       = "list_bookings"
	ScenarioLookupBooking      = "lookup_booking"
	ScenarioStaffOperation     = "staff_operation"
	ScenarioDashboardSummary   = "dashboard_summary"
	ScenarioSpikeCreateBooking = "spike_create_booking"
	ScenarioSpikeListBookings  = "spike_list_bookings"
	ScenarioSpikeDashboard     = "spike_dashboard"
	ScenarioSmokeJourney       = "smoke_journey"
)

// Custom metrics recorded by the booking scenarios.
const (
	MetricBookingCreationTime  = "booking_creation_time"
	MetricBookingRetrievalTime = "booking_retrieval_time"
	MetricSuccessfulBookings   = "successful_bookings"
)

// Suite holds what the booking scenarios share across all VUs.
type Suite struct {
	API      *API
	Tokens   *TokenPool
	Payloads *Generator
	Logger   *zap.Logger
}

// NewSuite creates a scenario suite.
func NewSuite(api *API, tokens *TokenPool, logger *zap.Logger) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suite{
		API:      api,
		Tokens:   tokens,
		Payloads: NewGenerator(),
		Logger:   logger,
	}
}

// definition builds one named scenario from the suite.
type definition func(s *Suite) (scenario.Action, scenario.Policy)

var catalog = map[string]definition{
	ScenarioCreateBooking:      (*Suite).createBooking,
	ScenarioListBookings:       (*Suite).listBookings,
	ScenarioLookupBooking:      (*Suite).lookupBooking,
	ScenarioStaffOperation:     (*Suite).staffOperation,
	ScenarioDashboardSummary:   (*Suite).dashboardSummary,
	ScenarioSpikeCreateBooking: (*Suite).spikeCreateBooking,
	ScenarioSpikeListBookings:  (*Suite).spikeListBookings,
	ScenarioSpikeDashboard:     (*Suite).spikeDashboard,
	ScenarioSmokeJourney:       (*Suite).smokeJourney,
}

// ScenarioNames returns every known scenario name, sorted.
func ScenarioNames() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsKnownScenario reports whether name is in the catalogue.
func IsKnownScenario(name string) bool {
	_, ok := catalog[name]
	return ok
}

// Weight assigns a selection weight to a scenario.
type Weight struct {
	Name   string
	Weight float64
}

// Register adds the weighted scenarios to reg in the given order.
func (s *Suite) Register(reg *scenario.Registry, weights []Weight) error {
	for _, w := range weights {
		def, ok := catalog[w.Name]
		if !ok {
			return fmt.Errorf("unknown scenario %q", w.Name)
		}
		action, policy := def(s)
		if err := reg.Register(w.Name, w.Weight, action, policy); err != nil {
			return err
		}
	}
	return nil
}

func latencyBelow(resp *bhttp.Response, limit time.Duration) bool {
	return resp != nil && resp.Duration < limit
}

func statusIs(resp *bhttp.Response, codes ...int) bool {
	if resp == nil {
		return false
	}
	for _, code := range codes {
		if resp.StatusCode == code {
			return true
		}
	}
	return false
}

// fill copies the response facts into the outcome.
func fill(o *scenario.Outcome, resp *bhttp.Response, err error) {
	o.Err = err
	if resp != nil {
		o.StatusCode = resp.StatusCode
		o.RequestDuration = resp.Duration
	}
}

func (s *Suite) create(ctx context.Context, sc *scenario.Context, name string, req *Request, latency time.Duration) scenario.Outcome {
	var o scenario.Outcome
	resp, err := s.API.CreateBooking(ctx, name, req)
	fill(&o, resp, err)

	o.Check("create booking: status 201", statusIs(resp, 201))

	token, hasToken := "", false
	if resp != nil {
		token, hasToken = AccessToken(resp.Body)
	}
	o.Check("create booking: has access token", hasToken)
	o.Check(fmt.Sprintf("create booking: response time < %s", latency), latencyBelow(resp, latency))

	s.keepToken(sc, resp, token, hasToken)
	return o
}

// keepToken adds the token of a created booking to the pool.
func (s *Suite) keepToken(sc *scenario.Context, resp *bhttp.Response, token string, hasToken bool) {
	if resp == nil || !resp.IsSuccess() {
		return
	}
	if hasToken {
		s.Tokens.Add(token)
	} else {
		sc.Logger.Debug("created booking without token", zap.ByteString("body", resp.Body))
	}
}

func created(o scenario.Outcome) bool {
	return o.Err == nil && o.StatusCode == 201
}

func (s *Suite) createBooking() (scenario.Action, scenario.Policy) {
	action := func(ctx context.Context, sc *scenario.Context) scenario.Outcome {
		return s.create(ctx, sc, "CreateBooking", s.Payloads.Random(sc.Rand), 500*time.Millisecond)
	}
	return action, scenario.Policy{
		Expected: scenario.ExpectStatus(409),
		Counter:  MetricSuccessfulBookings,
		CountIf:  created,
	}
}

// spikeCreateBooking accepts a 409 as a passing check; under a spike the
// capacity limit is expected to be hit.
func (s *Suite) spikeCreateBooking() (scenario.Action, scenario.Policy) {
	action := func(ctx context.Context, sc *scenario.Context) scenario.Outcome {
		var o scenario.Outcome
		resp, err := s.API.CreateBooking(ctx, "SpikeCreateBooking", s.Payloads.Spike(sc.Rand))
		fill(&o, resp, err)

		o.Check("spike create: status 201 or 409", statusIs(resp, 201, 409))
		o.Check("spike create: response time < 1s", latencyBelow(resp, time.Second))

		if resp != nil {
			token, hasToken := AccessToken(resp.Body)
			s.keepToken(sc, resp, token, hasToken)
		}
		return o
	}
	return action, scenario.Policy{
		Expected: scenario.ExpectStatus(409),
		Counter:  MetricSuccessfulBookings,
		CountIf:  created,
	}
}

func (s *Suite) list(ctx context.Context, name string, latency time.Duration) scenario.Outcome {
	var o scenario.Outcome
	resp, err := s.API.ListStaffBookings(ctx, name)
	fill(&o, resp, err)

	o.Check("get bookings: status 200", statusIs(resp, 200))
	o.Check("get bookings: is array", resp != nil && IsJSONArray(resp.Body))
	o.Check(fmt.Sprintf("get bookings: response time < %s", latency), latencyBelow(resp, latency))
	return o
}

func (s *Suite) listBookings() (scenario.Action, scenario.Policy) {
	action := func(ctx context.Context, _ *scenario.Context) scenario.Outcome {
		return s.list(ctx, "GetAllBookings", 300*time.Millisecond)
	}
	return action, scenario.Policy{}
}

func (s *Suite) spikeListBookings() (scenario.Action, scenario.Policy) {
	action := func(ctx context.Context, _ *scenario.Context) scenario.Outcome {
		var o scenario.Outcome
		resp, err := s.API.ListStaffBookings(ctx, "SpikeListBookings")
		fill(&o, resp, err)

		o.Check("spike list: status 200", statusIs(resp, 200))
		o.Check("spike list: response time < 800ms", latencyBelow(resp, 800*time.Millisecond))
		return o
	}
	return action, scenario.Policy{}
}

func (s *Suite) lookupBooking() (scenario.Action, scenario.Policy) {
	action := func(ctx context.Context, sc *scenario.Context) scenario.Outcome {
		token, ok := s.Tokens.Pick(sc.Rand)
		if !ok {
			return scenario.Outcome{Skipped: true}
		}

		var o scenario.Outcome
		resp, err := s.API.GetBookingByToken(ctx, "GetBookingByToken", token)
		fill(&o, resp, err)

		o.Check("get by token: status 200 or 404", statusIs(resp, 200, 404))
		o.Check("get by token: response time < 200ms", latencyBelow(resp, 200*time.Millisecond))
		if statusIs(resp, 200) {
			verr := ValidateBooking(resp.Body)
			if verr != nil {
				sc.Logger.Debug("booking body failed validation", zap.String("token", token), zap.Error(verr))
			}
			o.Check("get by token: valid booking", verr == nil)
		}
		return o
	}
	return action, scenario.Policy{Expected: scenario.ExpectStatus(404)}
}

func (s *Suite) staffOperation() (scenario.Action, scenario.Policy) {
	action := func(ctx context.Context, sc *scenario.Context) scenario.Outcome {
		token, ok := s.Tokens.Recent(sc.Rand)
		if !ok {
			return scenario.Outcome{Skipped: true}
		}
		op := StaffActions[sc.Rand.Intn(len(StaffActions))]

		var o scenario.Outcome
		resp, err := s.API.StaffTransition(ctx, staffRequestName(op), token, op)
		fill(&o, resp, err)

		o.Check("staff operation: status 200 or 400", statusIs(resp, 200, 400))
		o.Check("staff operation: response time < 400ms", latencyBelow(resp, 400*time.Millisecond))
		return o
	}
	return action, scenario.Policy{Expected: scenario.ExpectStatus(400)}
}

func staffRequestName(action string) string {
	switch action {
	case ActionAssign:
		return "StaffAssign"
	case ActionStart:
		return "StaffStart"
	case ActionComplete:
		return "StaffComplete"
	default:
		return "Staff"
	}
}

func (s *Suite) dashboardSummary() (scenario.Action, scenario.Policy) {
	action := func(ctx context.Context, _ *scenario.Context) scenario.Outcome {
		var o scenario.Outcome
		resp, err := s.API.DashboardSummary(ctx, "DashboardSummary")
		fill(&o, resp, err)

		o.Check("dashboard: status 200", statusIs(resp, 200))
		o.Check("dashboard: is object", resp != nil && IsJSONObject(resp.Body))
		o.Check("dashboard: response time < 600ms", latencyBelow(resp, 600*time.Millisecond))
		return o
	}
	return action, scenario.Policy{}
}

func (s *Suite) spikeDashboard() (scenario.Action, scenario.Policy) {
	action := func(ctx context.Context, _ *scenario.Context) scenario.Outcome {
		var o scenario.Outcome
		resp, err := s.API.DashboardSummary(ctx, "SpikeDashboard")
		fill(&o, resp, err)

		o.Check("spike dashboard: status 200", statusIs(resp, 200))
		o.Check("spike dashboard: response time < 600ms", latencyBelow(resp, 600*time.Millisecond))
		return o
	}
	return action, scenario.Policy{}
}

// smokeJourney creates a booking, reads it back by token and assigns it.
// The outcome carries the create request's status and duration; a 409 ends
// the journey early and is not an error.
func (s *Suite) smokeJourney() (scenario.Action, scenario.Policy) {
	action := func(ctx context.Context, sc *scenario.Context) scenario.Outcome {
		var o scenario.Outcome

		resp, err := s.API.CreateBooking(ctx, "SmokeCreateBooking", s.Payloads.Smoke(sc.VUID, sc.Iteration))
		fill(&o, resp, err)

		token, hasToken := "", false
		if resp != nil {
			token, hasToken = AccessToken(resp.Body)
		}
		o.Check("smoke create: status 201 or 409", statusIs(resp, 201, 409))
		o.Check("smoke create: has token if 201", !statusIs(resp, 201) || hasToken)

		if !statusIs(resp, 201) || !hasToken || ctx.Err() != nil {
			return o
		}
		s.keepToken(sc, resp, token, hasToken)

		lookup, err := s.API.GetBookingByToken(ctx, "SmokeRetrieveBooking", token)
		if err != nil {
			o.Err = err
		}
		if lookup != nil {
			if trend, terr := sc.Metrics.Trend(MetricBookingRetrievalTime); terr == nil {
				trend.Add(lookup.DurationMillis())
			}
		}
		echoed := ""
		if lookup != nil {
			echoed, _ = AccessToken(lookup.Body)
		}
		o.Check("smoke retrieve: status 200", statusIs(lookup, 200))
		o.Check("smoke retrieve: correct token", echoed == token)

		if ctx.Err() != nil {
			return o
		}

		assign, err := s.API.StaffTransition(ctx, "SmokeAssignBooking", token, ActionAssign)
		if err != nil {
			o.Err = err
		}
		o.Check("smoke assign: status 200 or 400", statusIs(assign, 200, 400))
		return o
	}

	return action, scenario.Policy{
		Trend:    MetricBookingCreationTime,
		Expected: scenario.ExpectStatus(409),
		Counter:  MetricSuccessfulBookings,
		CountIf:  created,
	}
}
