package booking

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/bookload/internal/booking/bookingtest"
	bhttp "github.com/wesleyorama2/bookload/internal/http"
	"github.com/wesleyorama2/bookload/internal/metrics"
	"github.com/wesleyorama2/bookload/internal/scenario"
)

type harness struct {
	server   *bookingtest.Server
	registry *metrics.Registry
	suite    *Suite
	recorder *scenario.Recorder
}

func newHarness(t *testing.T, defaultToken string) *harness {
	t.Helper()
	server := bookingtest.NewServer()
	t.Cleanup(server.Close)

	reg := metrics.NewRegistry()
	client := bhttp.NewClient(bhttp.WithBaseURL(server.BaseURL()), bhttp.WithMetrics(reg))
	suite := NewSuite(NewAPI(client), NewTokenPool(16, defaultToken), nil)
	suite.Payloads.Now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	return &harness{
		server:   server,
		registry: reg,
		suite:    suite,
		recorder: scenario.NewRecorder(reg, nil),
	}
}

func (h *harness) scenario(t *testing.T, name string) *scenario.Scenario {
	t.Helper()
	reg := scenario.NewRegistry()
	require.NoError(t, h.suite.Register(reg, []Weight{{Name: name, Weight: 1}}))
	sampler, err := reg.Close()
	require.NoError(t, err)
	return sampler.Scenarios()[0]
}

func (h *harness) context(vu int, iter int64) *scenario.Context {
	return &scenario.Context{
		VUID:      vu,
		Iteration: iter,
		Rand:      rand.New(rand.NewSource(int64(vu))),
		Logger:    h.suite.Logger,
		Metrics:   h.registry,
	}
}

func (h *harness) run(t *testing.T, s *scenario.Scenario, sc *scenario.Context) scenario.Outcome {
	t.Helper()
	o := s.Action(context.Background(), sc)
	h.recorder.Record(s, o, o.RequestDuration)
	return o
}

func (h *harness) errorCounts(t *testing.T) (trues, total int64) {
	t.Helper()
	rate, err := h.registry.Rate(metrics.Errors)
	require.NoError(t, err)
	return rate.Passes(), rate.Total()
}

func TestCreateThenLookup(t *testing.T) {
	h := newHarness(t, "")

	api := h.suite.API
	req := h.suite.Payloads.Smoke(1, 0)

	resp, err := api.CreateBooking(context.Background(), "CreateBooking", req)
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)

	token, ok := AccessToken(resp.Body)
	require.True(t, ok, "201 must carry a non-empty access token")

	lookup, err := api.GetBookingByToken(context.Background(), "GetBookingByToken", token)
	require.NoError(t, err)
	assert.Equal(t, 200, lookup.StatusCode)

	echoed, ok := AccessToken(lookup.Body)
	require.True(t, ok)
	assert.Equal(t, token, echoed)
	assert.NoError(t, ValidateBooking(lookup.Body))
	assert.Equal(t, "RECEIVED", CurrentStatus(lookup.Body))
}

func TestCreateBooking_ConflictIsNotAnError(t *testing.T) {
	h := newHarness(t, "")
	create := h.scenario(t, ScenarioCreateBooking)

	// Pin every payload to the same municipality and date.
	fixed := *h.suite.Payloads.Smoke(0, 0)
	create.Action = func(ctx context.Context, sc *scenario.Context) scenario.Outcome {
		return h.suite.create(ctx, sc, "CreateBooking", &fixed, time.Minute)
	}

	sc := h.context(1, 0)
	var conflicts int
	for i := 0; i < bookingtest.Capacity+3; i++ {
		o := h.run(t, create, sc)
		if o.StatusCode == 409 {
			conflicts++
		}
	}

	assert.Equal(t, 3, conflicts)
	trues, total := h.errorCounts(t)
	assert.Equal(t, int64(bookingtest.Capacity+3), total)
	assert.Equal(t, int64(0), trues, "409 must never count as an error")

	bookings, err := h.registry.Counter(MetricSuccessfulBookings)
	require.NoError(t, err)
	assert.Equal(t, float64(bookingtest.Capacity), bookings.Value())
	assert.Equal(t, bookingtest.Capacity, h.suite.Tokens.Len())
}

func TestCreateBooking_OtherFailuresAreErrors(t *testing.T) {
	h := newHarness(t, "")
	create := h.scenario(t, ScenarioCreateBooking)

	// Missing items makes the fake service answer 400.
	bad := &Request{Municipality: "Porto", CollectionDate: "2025-03-01", TimeSlot: "morning"}
	create.Action = func(ctx context.Context, sc *scenario.Context) scenario.Outcome {
		return h.suite.create(ctx, sc, "CreateBooking", bad, time.Minute)
	}

	o := h.run(t, create, h.context(1, 0))
	assert.Equal(t, 400, o.StatusCode)

	trues, total := h.errorCounts(t)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(1), trues, "a non-409, non-201 response is an error")
}

func TestCreateBooking_TransportErrorIsAnError(t *testing.T) {
	h := newHarness(t, "")
	create := h.scenario(t, ScenarioCreateBooking)
	h.server.Close()

	o := h.run(t, create, h.context(1, 0))
	require.Error(t, o.Err)
	assert.False(t, o.Success())

	trues, _ := h.errorCounts(t)
	assert.Equal(t, int64(1), trues)
}

func TestLookupUnknownToken_IsNotAnError(t *testing.T) {
	h := newHarness(t, DefaultPlaceholderToken)
	lookup := h.scenario(t, ScenarioLookupBooking)

	o := h.run(t, lookup, h.context(1, 0))
	require.NoError(t, o.Err)
	assert.Equal(t, 404, o.StatusCode)

	trues, total := h.errorCounts(t)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(0), trues, "404 for an unknown token is expected")
}

func TestLookup_SkipsWithoutTokens(t *testing.T) {
	h := newHarness(t, "")
	lookup := h.scenario(t, ScenarioLookupBooking)

	o := h.run(t, lookup, h.context(1, 0))
	assert.True(t, o.Skipped)
	assert.Equal(t, int64(0), h.server.Requests())
}

func TestStaffOperation_InvalidTransitionIsNotAnError(t *testing.T) {
	h := newHarness(t, "")
	staff := h.scenario(t, ScenarioStaffOperation)

	o := h.run(t, staff, h.context(1, 0))
	assert.True(t, o.Skipped, "no token issued yet")

	resp, err := h.suite.API.CreateBooking(context.Background(), "CreateBooking", h.suite.Payloads.Smoke(2, 0))
	require.NoError(t, err)
	token, _ := AccessToken(resp.Body)
	h.suite.Tokens.Add(token)

	sc := h.context(3, 0)
	statuses := map[int]int{}
	for i := 0; i < 100; i++ {
		o := h.run(t, staff, sc)
		statuses[o.StatusCode]++
	}

	assert.Equal(t, 100, statuses[200]+statuses[400])
	assert.Greater(t, statuses[400], 0)
	assert.Equal(t, "COMPLETED", h.server.Status(token))

	trues, _ := h.errorCounts(t)
	assert.Equal(t, int64(0), trues)
}

func TestSmokeJourney(t *testing.T) {
	h := newHarness(t, "")
	journey := h.scenario(t, ScenarioSmokeJourney)

	for iter := int64(0); iter < 3; iter++ {
		o := h.run(t, journey, h.context(1, iter))
		require.True(t, o.Success(), "checks: %+v", o.Checks)
		assert.Len(t, o.Checks, 5)
	}

	creation, err := h.registry.Trend(MetricBookingCreationTime)
	require.NoError(t, err)
	assert.Equal(t, int64(3), creation.Count())

	retrieval, err := h.registry.Trend(MetricBookingRetrievalTime)
	require.NoError(t, err)
	assert.Equal(t, int64(3), retrieval.Count())

	bookings, err := h.registry.Counter(MetricSuccessfulBookings)
	require.NoError(t, err)
	assert.Equal(t, 3.0, bookings.Value())

	assert.Equal(t, 3, h.server.Bookings())
}

func TestListAndDashboard(t *testing.T) {
	h := newHarness(t, "")

	for _, name := range []string{ScenarioListBookings, ScenarioSpikeListBookings, ScenarioDashboardSummary, ScenarioSpikeDashboard} {
		s := h.scenario(t, name)
		o := h.run(t, s, h.context(1, 0))
		assert.True(t, o.Success(), "%s checks: %+v", name, o.Checks)
	}

	for _, tag := range []string{"DashboardSummary", "SpikeDashboard", "SpikeListBookings"} {
		tagged, err := h.registry.Trend("http_req_duration{name:" + tag + "}")
		require.NoError(t, err)
		assert.Equal(t, int64(1), tagged.Count(), tag)
	}
}

func TestSpikeScenarios_CheckLabels(t *testing.T) {
	h := newHarness(t, "")

	labels := func(o scenario.Outcome) []string {
		out := make([]string, 0, len(o.Checks))
		for _, c := range o.Checks {
			out = append(out, c.Label)
		}
		return out
	}

	o := h.run(t, h.scenario(t, ScenarioSpikeListBookings), h.context(1, 0))
	assert.Equal(t, []string{"spike list: status 200", "spike list: response time < 800ms"}, labels(o))

	o = h.run(t, h.scenario(t, ScenarioSpikeDashboard), h.context(1, 0))
	assert.Equal(t, []string{"spike dashboard: status 200", "spike dashboard: response time < 600ms"}, labels(o))

	o = h.run(t, h.scenario(t, ScenarioSpikeCreateBooking), h.context(1, 0))
	assert.Equal(t, []string{"spike create: status 201 or 409", "spike create: response time < 1s"}, labels(o))
	assert.Equal(t, 1, h.suite.Tokens.Len(), "a created spike booking feeds the token pool")
}

func TestSpikeCreateBooking_ConflictKeepsChecksPassing(t *testing.T) {
	h := newHarness(t, "")
	create := h.scenario(t, ScenarioSpikeCreateBooking)

	// A fresh context per iteration reseeds the payload generator, so every
	// request targets the same municipality and date.
	var last scenario.Outcome
	for i := 0; i <= bookingtest.Capacity; i++ {
		last = h.run(t, create, h.context(1, int64(i)))
	}
	require.Equal(t, 409, last.StatusCode)
	assert.True(t, last.Success(), "checks: %+v", last.Checks)

	checks, err := h.registry.Rate(metrics.Checks)
	require.NoError(t, err)
	assert.Equal(t, int64(2*(bookingtest.Capacity+1)), checks.Total())
	assert.Equal(t, 1.0, checks.Rate())

	trues, _ := h.errorCounts(t)
	assert.Equal(t, int64(0), trues)

	bookings, err := h.registry.Counter(MetricSuccessfulBookings)
	require.NoError(t, err)
	assert.Equal(t, float64(bookingtest.Capacity), bookings.Value())

	tagged, err := h.registry.Rate("http_req_failed{name:SpikeCreateBooking}")
	require.NoError(t, err)
	assert.Equal(t, 0.0, tagged.Rate())
}

func TestRegister_UnknownScenario(t *testing.T) {
	h := newHarness(t, "")
	err := h.suite.Register(scenario.NewRegistry(), []Weight{{Name: "checkout", Weight: 1}})
	assert.Error(t, err)

	assert.True(t, IsKnownScenario(ScenarioSmokeJourney))
	assert.Contains(t, ScenarioNames(), ScenarioDashboardSummary)
}

func TestTokenPool(t *testing.T) {
	pool := NewTokenPool(3, "")
	rng := rand.New(rand.NewSource(1))

	_, ok := pool.Pick(rng)
	assert.False(t, ok)

	for _, tok := range []string{"a", "b", "c", "d"} {
		pool.Add(tok)
	}
	pool.Add("")

	assert.Equal(t, 3, pool.Len())
	latest, ok := pool.Latest()
	require.True(t, ok)
	assert.Equal(t, "d", latest)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		tok, ok := pool.Recent(rng)
		require.True(t, ok)
		seen[tok] = true
	}
	assert.Equal(t, map[string]bool{"b": true, "c": true, "d": true}, seen, "oldest token evicted")

	fallback := NewTokenPool(3, DefaultPlaceholderToken)
	tok, ok := fallback.Pick(rng)
	require.True(t, ok)
	assert.Equal(t, DefaultPlaceholderToken, tok)
}

func TestTokenPool_Concurrent(t *testing.T) {
	pool := NewTokenPool(8, "")

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < 200; i++ {
				pool.Add("tok")
				_, _ = pool.Recent(rng)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 8, pool.Len())
}

func TestGenerator(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	g := &Generator{Now: func() time.Time { return now }}

	smoke := g.Smoke(2, 3)
	assert.Equal(t, "2025-03-18", smoke.CollectionDate, "30 + 2*20 + 3*2 = 76 days ahead")
	assert.Equal(t, "Coimbra", smoke.Municipality)

	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 100; i++ {
		r := g.Random(rng)
		date, err := time.Parse(DateLayout, r.CollectionDate)
		require.NoError(t, err)
		days := int(date.Sub(now.Truncate(24*time.Hour)).Hours() / 24)
		assert.GreaterOrEqual(t, days, 30)
		assert.Less(t, days, 90)
		assert.Len(t, r.Items, 1)
	}

	a := g.Spike(rand.New(rand.NewSource(11)))
	b := g.Spike(rand.New(rand.NewSource(11)))
	assert.Equal(t, a, b, "payloads are reproducible for a seed")
	assert.Regexp(t, `^Item-[0-9a-f]{8}$`, a.Items[0].Name)
}

func TestBodyHelpers(t *testing.T) {
	_, ok := AccessToken([]byte(`{"accessToken":""}`))
	assert.False(t, ok)
	_, ok = AccessToken([]byte(`not json`))
	assert.False(t, ok)
	_, ok = AccessToken([]byte(`{"accessToken":12}`))
	assert.False(t, ok)

	assert.True(t, IsJSONArray([]byte(`[]`)))
	assert.False(t, IsJSONArray([]byte(`{}`)))
	assert.True(t, IsJSONObject([]byte(`{"total":1}`)))
	assert.False(t, IsJSONObject([]byte(`[`)))

	err := ValidateBooking([]byte(`{"accessToken":"X","municipality":"Porto","collectionDate":"01/02/2025","timeSlot":"morning","currentStatus":"LOST"}`))
	require.Error(t, err)
	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.Len(t, verrs, 2)
}
