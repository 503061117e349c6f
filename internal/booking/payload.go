package booking

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Request is the body of POST /bookings.
type Request struct {
	Municipality   string `json:"municipality"`
	CollectionDate string `json:"collectionDate"`
	TimeSlot       string `json:"timeSlot"`
	Items          []Item `json:"items"`
}

// Item is one piece of bulk waste.
type Item struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
	Volume      float64 `json:"volume"`
}

// DateLayout is the collection date format accepted by the service.
const DateLayout = "2006-01-02"

// MaxBookingsPerDate is the service's capacity per municipality and date.
const MaxBookingsPerDate = 10

var (
	// Municipalities used by the load and smoke payloads.
	Municipalities = []string{"Porto", "Lisboa", "Coimbra", "Braga", "Faro"}

	// SpikeMunicipalities widens the set to spread spike traffic.
	SpikeMunicipalities = []string{"Porto", "Lisboa", "Coimbra", "Braga", "Faro", "Aveiro", "Setúbal", "Évora"}

	// TimeSlots accepted by the service.
	TimeSlots = []string{"morning", "afternoon", "evening"}

	catalogItems = []Item{
		{Name: "Sofa", Description: "Old sofa", Weight: 50.0, Volume: 2.5},
		{Name: "Table", Description: "Wooden table", Weight: 30.0, Volume: 1.2},
		{Name: "Chair", Description: "Office chair", Weight: 15.0, Volume: 0.8},
	}
)

// Generator builds booking payloads from a VU's random source.
type Generator struct {
	// Now returns the reference date; collection dates are days after it.
	Now func() time.Time
}

// NewGenerator returns a generator using the wall clock.
func NewGenerator() *Generator {
	return &Generator{Now: time.Now}
}

func (g *Generator) date(daysAhead int) string {
	return g.Now().AddDate(0, 0, daysAhead).Format(DateLayout)
}

// Random returns a booking 30 to 89 days ahead with one catalogue item.
func (g *Generator) Random(rng *rand.Rand) *Request {
	return &Request{
		Municipality:   pick(rng, Municipalities),
		CollectionDate: g.date(30 + rng.Intn(60)),
		TimeSlot:       pick(rng, TimeSlots),
		Items:          []Item{catalogItems[rng.Intn(len(catalogItems))]},
	}
}

// Spike returns a booking 30 to 119 days ahead with a uniquely named item of
// random weight and volume.
func (g *Generator) Spike(rng *rand.Rand) *Request {
	name := "Item"
	if id, err := uuid.NewRandomFromReader(rng); err == nil {
		name = "Item-" + id.String()[:8]
	}

	return &Request{
		Municipality:   pick(rng, SpikeMunicipalities),
		CollectionDate: g.date(30 + rng.Intn(90)),
		TimeSlot:       pick(rng, TimeSlots),
		Items: []Item{{
			Name:        name,
			Description: "Bulk waste item",
			Weight:      round2(rng.Float64()*50 + 10),
			Volume:      round2(rng.Float64()*3 + 0.5),
		}},
	}
}

// Smoke returns a deterministic booking whose date is unique per VU and
// iteration, so a smoke run never reaches the capacity limit.
func (g *Generator) Smoke(vuID int, iteration int64) *Request {
	daysAhead := 30 + vuID*20 + int(iteration)*2
	return &Request{
		Municipality:   Municipalities[vuID%len(Municipalities)],
		CollectionDate: g.date(daysAhead),
		TimeSlot:       "morning",
		Items: []Item{{
			Name:        "Test Item",
			Description: "Smoke test item",
			Weight:      25.0,
			Volume:      1.5,
		}},
	}
}

func pick(rng *rand.Rand, values []string) string {
	return values[rng.Intn(len(values))]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
