package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LazyCreation(t *testing.T) {
	reg := NewRegistry()

	if _, ok := reg.Get("errors"); ok {
		t.Fatal("metric exists before first use")
	}

	rate, err := reg.Rate("errors")
	require.NoError(t, err)
	rate.Add(true)

	again, err := reg.Rate("errors")
	require.NoError(t, err)
	assert.Same(t, rate, again, "second lookup should return the same collector")

	m, ok := reg.Get("errors")
	require.True(t, ok)
	assert.Equal(t, KindRate, m.Kind())
}

func TestRegistry_KindIsFixed(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Trend("booking_creation_time")
	require.NoError(t, err)

	_, err = reg.Counter("booking_creation_time")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKindMismatch))

	_, err = reg.Rate("booking_creation_time")
	assert.True(t, errors.Is(err, ErrKindMismatch))

	m, _ := reg.Get("booking_creation_time")
	assert.Equal(t, KindTrend, m.Kind(), "kind must not change after a mismatched request")
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Counter("http_reqs")
	_, _ = reg.Rate("checks")
	_, _ = reg.Trend("http_req_duration")

	assert.Equal(t, []string{"checks", "http_req_duration", "http_reqs"}, reg.Names())
}

func TestRegistry_ConcurrentCreation(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := reg.Counter("http_reqs")
			if err != nil {
				t.Error(err)
				return
			}
			c.Add(1)
		}()
	}
	wg.Wait()

	c, err := reg.Counter("http_reqs")
	require.NoError(t, err)
	assert.Equal(t, 50.0, c.Value())
}

func TestRegistry_Snapshot(t *testing.T) {
	reg := NewRegistry()
	trend, _ := reg.Trend("http_req_duration")
	trend.Add(10)
	trend.Add(30)
	rate, _ := reg.Rate("errors")
	rate.Add(false)
	counter, _ := reg.Counter("successful_bookings")
	counter.Add(2)

	snap := reg.Snapshot()
	require.Len(t, snap, 3)

	d := snap["http_req_duration"]
	assert.Equal(t, KindTrend, d.Kind)
	assert.Equal(t, int64(2), d.Count)
	require.NotNil(t, d.Avg)
	assert.Equal(t, 20.0, *d.Avg)

	assert.Equal(t, 0.0, snap["errors"].Rate)
	assert.Equal(t, int64(1), snap["errors"].Fails)
	assert.Equal(t, 2.0, snap["successful_bookings"].Value)
}

func TestPercentileKey(t *testing.T) {
	tests := []struct {
		q    float64
		want string
	}{
		{0.9, "p(90)"},
		{0.95, "p(95)"},
		{0.99, "p(99)"},
		{0.999, "p(99.9)"},
		{0.5, "p(50)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, PercentileKey(tt.q))
		})
	}
}

func TestKind_TextRoundTrip(t *testing.T) {
	for _, k := range []Kind{KindTrend, KindRate, KindCounter} {
		text, err := k.MarshalText()
		require.NoError(t, err)

		var got Kind
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, k, got)
	}

	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("gauge")))
}

func TestPrometheusHandler(t *testing.T) {
	reg := NewRegistry()
	trend, _ := reg.Trend("http_req_duration{name:CreateBooking}")
	trend.Add(120)
	rate, _ := reg.Rate("errors")
	rate.Add(true)
	rate.Add(false)
	counter, _ := reg.Counter("successful_bookings")
	counter.Add(3)

	server := httptest.NewServer(NewPrometheusHandler(reg, func() float64 { return 7 }))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `bookload_http_req_duration_milliseconds_count{name="CreateBooking"} 1`)
	assert.Regexp(t, `bookload_errors_ratio(\{name=""\})? 0.5`, text)
	assert.Regexp(t, `bookload_successful_bookings_total(\{name=""\})? 3`, text)
	assert.Contains(t, text, "bookload_vus 7")
}

func TestSplitSubMetric(t *testing.T) {
	base, tag := splitSubMetric("http_req_duration{name:GetBookingByToken}")
	assert.Equal(t, "http_req_duration", base)
	assert.Equal(t, "GetBookingByToken", tag)

	base, tag = splitSubMetric("errors")
	assert.Equal(t, "errors", base)
	assert.Empty(t, tag)

	assert.False(t, strings.ContainsAny(sanitize("a.b-c"), ".-"))
}
