package source

import (
	"context"
	"fmt"
	"hash/fnv"

	"homematch/models"
)

// Static is a deterministic fixture-backed Source used for tests and
// offline demo mode. The same (area, query) always yields the same
// listings, so session snapshots and dedup behave exactly as they would
// against a live portal.
type Static struct{}

// NewStatic creates the fixture source.
func NewStatic() *Static { return &Static{} }

var streets = []string{
	"Bergen St", "Dekalb Ave", "Lexington Ave", "Graham Ave",
	"Steinway St", "Court St", "Nostrand Ave", "Broadway",
}

var lineGroups = [][]string{
	{}, {"L"}, {"A", "C"}, {"N", "Q", "R"}, {"2", "3"}, {"F", "G"},
}

var noiseLevels = []string{models.NoiseQuiet, models.NoiseAverage, models.NoiseUnknown}
var buildingTypes = []string{models.BuildingElevator, models.BuildingWalkup, models.BuildingUnknown}

var descriptors = []string{
	"Sun-drenched unit with dishwasher and in-unit laundry, steps from the subway.",
	"Quiet top-floor walkup, recently renovated, great natural light.",
	"Elevator building with gym and doorman, pets allowed.",
	"Cozy unit near the park, outdoor space and laundry in basement.",
	"Spacious convertible with dishwasher, close to three subway lines.",
}

// Search generates q.Limit deterministic listings for the area/offset.
func (s *Static) Search(_ context.Context, area string, q models.Query) ([]*models.Listing, error) {
	listings := make([]*models.Listing, 0, q.Limit)
	for i := 0; i < q.Limit; i++ {
		n := q.Offset + i
		seed := hash(fmt.Sprintf("%s:%s:%d", area, q.PriceType, n))

		basePrice := 1800.0
		if q.PriceType == models.PriceBuy {
			basePrice = 450000.0
		}
		price := basePrice * (1 + float64(seed%70)/100)

		beds := q.Beds
		if beds == 0 {
			beds = 1 + int(seed%3)
		}
		baths := q.Baths
		if baths == 0 {
			baths = 1
		}

		street := streets[seed%uint32(len(streets))]
		lines := lineGroups[seed%uint32(len(lineGroups))]
		id := fmt.Sprintf("%s-%d", area, n)

		l := &models.Listing{
			ID:          id,
			Title:       fmt.Sprintf("%d bed on %s", beds, street),
			Price:       float64(int(price/10)) * 10,
			PriceType:   q.PriceType,
			Beds:        beds,
			Baths:       baths,
			Sqft:        450 + int(seed%900),
			Address:     fmt.Sprintf("%d %s, %s", 10+seed%400, street, area),
			Area:        area,
			Description: descriptors[seed%uint32(len(descriptors))],
			Tags: &models.Tags{
				Dishwasher:      seed%2 == 0,
				InUnitLaundry:   seed%3 == 0,
				Gym:             seed%5 == 0,
				Doorman:         seed%7 == 0,
				OutdoorSpace:    seed%4 == 0,
				PetsAllowed:     seed%3 == 1,
				Renovated:       seed%5 == 1,
				NaturalLight:    seed%2 == 1,
				NearSubwayLines: lines,
				NoiseLevel:      noiseLevels[seed%uint32(len(noiseLevels))],
				BuildingType:    buildingTypes[(seed/3)%uint32(len(buildingTypes))],
			},
			ExternalListingURL: "https://listings.example.com/" + id,
		}
		listings = append(listings, l)
	}
	return listings, nil
}

func hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
