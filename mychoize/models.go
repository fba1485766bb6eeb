package mychoize

// RateBasis is the partner's billing mode for an offer.
type RateBasis string

const (
	FixedFare    RateBasis = "FF"
	MonthlyPlan  RateBasis = "MP"
	DailyRental  RateBasis = "DR"
	Subscription RateBasis = "MLK"
)

// RawCar is one row of the partner SearchBookingModel.
type RawCar struct {
	BrandName             string       `json:"BrandName"`
	BrandKey              StringNumber `json:"BrandKey"`
	BrandLength           Number       `json:"BrandLength"`
	BrandGroundLength     Number       `json:"BrandGroundLength"`
	RateBasis             RateBasis    `json:"RateBasis"`
	PerUnitCharges        Number       `json:"PerUnitCharges"`
	TotalExpCharge        Number       `json:"TotalExpCharge"`
	ExKMRate              Number       `json:"ExKMRate"`
	LocationKey           StringNumber `json:"LocationKey"`
	LocationName          string       `json:"LocationName"`
	TransMissionType      string       `json:"TransMissionType"`
	TransmissionType      string       `json:"TransmissionType"`
	FuelType              string       `json:"FuelType"`
	SeatingCapacity       Number       `json:"SeatingCapacity"`
	LuggageCapacity       Number       `json:"LuggageCapacity"`
	RFTEngineCapacity     Number       `json:"RFTEngineCapacity"`
	VTRSUVFlag            StringNumber `json:"VTRSUVFlag"`
	VTRHybridFlag         StringNumber `json:"VTRHybridFlag"`
	TotalBookinCount      Number       `json:"TotalBookinCount"`
	GroupKey              StringNumber `json:"GroupKey"`
	TariffKey             StringNumber `json:"TariffKey"`
	VehicleBrandImageName string       `json:"VehicleBrandImageName"`
}

type RatingData struct {
	Text string `json:"text"`
}

// KmAllowance maps a rate basis to the distance included for the trip.
type KmAllowance map[RateBasis]string

// SubscriptionListing is built from exactly one MLK record.
type SubscriptionListing struct {
	ID            string     `json:"id"`
	Brand         string     `json:"brand"`
	Name          string     `json:"name"`
	Options       []string   `json:"options"`
	Address       string     `json:"address"`
	LocationKey   string     `json:"locationkey"`
	HourlyAmount  float64    `json:"hourly_amount"`
	Images        []string   `json:"images"`
	RatingData    RatingData `json:"ratingData"`
	ExtraKMCharge string     `json:"extrakm_charge"`
	Trips         float64    `json:"trips"`
	Source        string     `json:"source"`
	SourceImg     string     `json:"sourceImg"`
	Fare          string     `json:"fare"`
	RateBasis     RateBasis  `json:"rateBasis"`
}

// RentalListing collapses every non-MLK record that shares a group key.
type RentalListing struct {
	ID            string      `json:"id"`
	Brand         string      `json:"brand"`
	Name          string      `json:"name"`
	Options       []string    `json:"options"`
	Address       string      `json:"address"`
	LocationID    string      `json:"location_id"`
	HourlyAmount  float64     `json:"hourly_amount"`
	Images        []string    `json:"images"`
	RatingData    RatingData  `json:"ratingData"`
	TotalKm       KmAllowance `json:"total_km"`
	ExtraKMCharge string      `json:"extrakm_charge"`
	Trips         float64     `json:"trips"`
	Source        string      `json:"source"`
	SourceImg     string      `json:"sourceImg"`

	RateBasisFare map[RateBasis]float64 `json:"rateBasisFare"`
	AllFares      []float64             `json:"all_fares"`
	Fare          string                `json:"fare"`
	InflatedFare  string                `json:"inflated_fare"`

	BrandGroundLength float64 `json:"brandGroundLength"`
	BrandKey          string  `json:"brandKey"`
	BrandLength       float64 `json:"brandLength"`
	FuelType          string  `json:"fuelType"`
	GroupKey          string  `json:"groupKey"`
	LocationKey       string  `json:"locationKey"`
	LuggageCapacity   float64 `json:"luggageCapacity"`
	RFTEngineCapacity float64 `json:"rftEngineCapacity"`
	SeatingCapacity   float64 `json:"seatingCapacity"`
	TariffKey         string  `json:"tariffKey"`
	TransmissionType  string  `json:"transmissionType"`
	VTRHybridFlag     string  `json:"vtrHybridFlag"`
	VTRSUVFlag        string  `json:"vtrSUVFlag"`
}

// MinFare is the lowest fare seen for the group.
func (l RentalListing) MinFare() float64 {
	if len(l.AllFares) == 0 {
		return 0
	}
	m := l.AllFares[0]
	for _, f := range l.AllFares[1:] {
		if f < m {
			m = f
		}
	}
	return m
}
