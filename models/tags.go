package models

// Enum values for Tags.NoiseLevel and Tags.BuildingType. Anything the
// extraction service returns outside these sets normalises to "unknown".
const (
	NoiseQuiet   = "quiet"
	NoiseAverage = "average"
	NoiseUnknown = "unknown"

	BuildingElevator = "elevator"
	BuildingWalkup   = "walkup"
	BuildingUnknown  = "unknown"
)

// Tags is the strict amenity schema produced by the tag-extraction
// service. Every field is required in the extraction response; missing
// booleans decode as false and missing enums are normalised to
// "unknown", so a partially parsed payload still scores safely.
type Tags struct {
	Dishwasher    bool `json:"dishwasher"`
	InUnitLaundry bool `json:"inUnitLaundry"`
	Gym           bool `json:"gym"`
	Doorman       bool `json:"doorman"`
	OutdoorSpace  bool `json:"outdoorSpace"`
	PetsAllowed   bool `json:"petsAllowed"`
	Renovated     bool `json:"renovated"`
	NaturalLight  bool `json:"naturalLight"`

	NearSubwayLines []string `json:"nearSubwayLines"`
	NoiseLevel      string   `json:"noiseLevel"`
	BuildingType    string   `json:"buildingType"`
}

// AmenityNames lists the boolean amenity keys in a stable order.
var AmenityNames = []string{
	"dishwasher", "inUnitLaundry", "gym", "doorman",
	"outdoorSpace", "petsAllowed", "renovated", "naturalLight",
}

// NeutralTags returns the degraded-mode tag set used when extraction is
// unavailable or its output cannot be parsed.
func NeutralTags() *Tags {
	return &Tags{
		NoiseLevel:   NoiseUnknown,
		BuildingType: BuildingUnknown,
	}
}

// Normalize coerces out-of-schema enum values to "unknown" and nil
// slices to empty. Safe on the zero value.
func (t *Tags) Normalize() {
	switch t.NoiseLevel {
	case NoiseQuiet, NoiseAverage:
	default:
		t.NoiseLevel = NoiseUnknown
	}
	switch t.BuildingType {
	case BuildingElevator, BuildingWalkup:
	default:
		t.BuildingType = BuildingUnknown
	}
	if t.NearSubwayLines == nil {
		t.NearSubwayLines = []string{}
	}
}

// Amenities returns the boolean amenity set keyed by AmenityNames.
func (t *Tags) Amenities() map[string]bool {
	return map[string]bool{
		"dishwasher":    t.Dishwasher,
		"inUnitLaundry": t.InUnitLaundry,
		"gym":           t.Gym,
		"doorman":       t.Doorman,
		"outdoorSpace":  t.OutdoorSpace,
		"petsAllowed":   t.PetsAllowed,
		"renovated":     t.Renovated,
		"naturalLight":  t.NaturalLight,
	}
}

// AmenityCount returns how many boolean amenities are set.
func (t *Tags) AmenityCount() int {
	n := 0
	for _, on := range t.Amenities() {
		if on {
			n++
		}
	}
	return n
}
