package mychoize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/yourorg/rental-api/internal/canon"
)

const (
	sourceName       = "mychoize"
	defaultSourceImg = "/images/ServiceProvider/mychoize.png"
	noRatings        = "No ratings available"
)

// StringNumber accepts a JSON string, number or bool and keeps its textual form.
type StringNumber string

func (s *StringNumber) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = StringNumber(str)
		return nil
	}
	if string(b) == "true" || string(b) == "false" {
		*s = StringNumber(b)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*s = StringNumber(num.String())
	return nil
}

// Number accepts a JSON number or a numeric string. Empty and null decode to zero.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*n = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		if str == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", str, err)
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// DecodeSearch extracts SearchBookingModel from a partner search payload.
// A payload without the model is a bad response.
func DecodeSearch(raw []byte) ([]RawCar, error) {
	var root struct {
		SearchBookingModel *[]RawCar `json:"SearchBookingModel"`
	}
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if root.SearchBookingModel == nil {
		return nil, fmt.Errorf("%w: response missing SearchBookingModel", ErrBadResponse)
	}
	return *root.SearchBookingModel, nil
}

var absoluteURL = regexp.MustCompile(`^(?i)https?://`)

// Mapper turns partner rows into listings. The zero value is usable.
type Mapper struct {
	// ImageBaseURL is prefixed to relative vehicle image names.
	ImageBaseURL string
	SourceImg    string
}

func (m Mapper) imageURL(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || m.ImageBaseURL == "" || absoluteURL.MatchString(name) {
		return name
	}
	return strings.TrimRight(m.ImageBaseURL, "/") + "/" + strings.TrimLeft(name, "/")
}

func (m Mapper) sourceImg() string {
	if m.SourceImg != "" {
		return m.SourceImg
	}
	return defaultSourceImg
}

// Subscriptions maps every MLK row that has a brand name.
func (m Mapper) Subscriptions(cars []RawCar) []SubscriptionListing {
	out := make([]SubscriptionListing, 0, len(cars))
	for _, car := range cars {
		if car.RateBasis != Subscription || !hasBrand(car) {
			continue
		}
		brand, name := splitBrand(car.BrandName)
		out = append(out, SubscriptionListing{
			ID:            string(car.TariffKey),
			Brand:         brand,
			Name:          name,
			Options:       options(car),
			Address:       car.LocationName,
			LocationKey:   string(car.LocationKey),
			HourlyAmount:  float64(car.PerUnitCharges),
			Images:        []string{m.imageURL(car.VehicleBrandImageName)},
			RatingData:    RatingData{Text: noRatings},
			ExtraKMCharge: perKm(float64(car.ExKMRate)),
			Trips:         float64(car.TotalBookinCount),
			Source:        sourceName,
			SourceImg:     m.sourceImg(),
			Fare:          Rupees(float64(car.TotalExpCharge)),
			RateBasis:     car.RateBasis,
		})
	}
	return out
}

// Rentals groups every non-MLK row with a brand name by GroupKey. The first
// row of a group supplies the vehicle attributes; every row contributes its
// fare. Groups keep the order in which their key was first seen.
func (m Mapper) Rentals(cars []RawCar, tripDurationHours, multiplier float64) []RentalListing {
	groups := make(map[StringNumber]*RentalListing)
	order := make([]StringNumber, 0)
	for _, car := range cars {
		if car.RateBasis == Subscription || !hasBrand(car) {
			continue
		}
		g, ok := groups[car.GroupKey]
		if !ok {
			g = m.newRental(car, tripDurationHours)
			groups[car.GroupKey] = g
			order = append(order, car.GroupKey)
		}
		fare := float64(car.TotalExpCharge)
		g.RateBasisFare[car.RateBasis] = fare
		if !slices.Contains(g.AllFares, fare) {
			g.AllFares = append(g.AllFares, fare)
		}
	}

	out := make([]RentalListing, 0, len(order))
	for _, key := range order {
		g := groups[key]
		low := g.MinFare()
		g.Fare = Rupees(low)
		g.InflatedFare = Rupees(math.Trunc(multiplier * low))
		out = append(out, *g)
	}
	return out
}

func (m Mapper) newRental(car RawCar, hours float64) *RentalListing {
	brand, name := splitBrand(car.BrandName)
	return &RentalListing{
		ID:            string(car.TariffKey),
		Brand:         brand,
		Name:          name,
		Options:       options(car),
		Address:       car.LocationName,
		LocationID:    string(car.LocationKey),
		HourlyAmount:  float64(car.PerUnitCharges),
		Images:        []string{m.imageURL(car.VehicleBrandImageName)},
		RatingData:    RatingData{Text: noRatings},
		TotalKm:       TotalKms(hours),
		ExtraKMCharge: perKm(float64(car.ExKMRate)),
		Trips:         float64(car.TotalBookinCount),
		Source:        sourceName,
		SourceImg:     m.sourceImg(),
		RateBasisFare: make(map[RateBasis]float64),
		AllFares:      make([]float64, 0, 3),

		BrandGroundLength: float64(car.BrandGroundLength),
		BrandKey:          string(car.BrandKey),
		BrandLength:       float64(car.BrandLength),
		FuelType:          car.FuelType,
		GroupKey:          string(car.GroupKey),
		LocationKey:       string(car.LocationKey),
		LuggageCapacity:   float64(car.LuggageCapacity),
		RFTEngineCapacity: float64(car.RFTEngineCapacity),
		SeatingCapacity:   float64(car.SeatingCapacity),
		TariffKey:         string(car.TariffKey),
		TransmissionType:  nonEmpty(car.TransmissionType, car.TransMissionType),
		VTRHybridFlag:     string(car.VTRHybridFlag),
		VTRSUVFlag:        string(car.VTRSUVFlag),
	}
}

// Rupees renders an amount the way listings display it, e.g. "₹900".
func Rupees(v float64) string {
	return "₹" + formatNumber(v)
}

func perKm(v float64) string {
	return Rupees(v) + "/km"
}

func options(car RawCar) []string {
	return []string{
		nonEmpty(car.TransMissionType, car.TransmissionType),
		car.FuelType,
		formatNumber(float64(car.SeatingCapacity)) + " Seats",
	}
}

// splitBrand turns "MARUTI SWIFT DZIRE" into ("Maruti", "Swift Dzire").
func splitBrand(full string) (brand, name string) {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "", ""
	}
	return canon.Title(fields[0]), canon.Title(strings.Join(fields[1:], " "))
}

func hasBrand(car RawCar) bool {
	return strings.TrimSpace(car.BrandName) != ""
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func nonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
