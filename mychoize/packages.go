package mychoize

import (
	"fmt"
	"strings"
	"time"
)

const (
	fixedFareKmPerDay   = 120
	monthlyPlanKmPerDay = 300
	unlimitedKms        = "Unlimited KMs"
)

// ist is the fixed +05:30 offset the partner encodes into every date.
var ist = time.FixedZone("IST", 5*60*60+30*60)

// TotalKms prorates each plan's daily allowance over the trip.
func TotalKms(tripDurationHours float64) KmAllowance {
	return KmAllowance{
		FixedFare:   formatNumber(fixedFareKmPerDay/24.0*tripDurationHours) + " KMs",
		MonthlyPlan: formatNumber(monthlyPlanKmPerDay/24.0*tripDurationHours) + " KMs",
		DailyRental: unlimitedKms,
	}
}

// FindPackage returns the display label of a rate basis.
func FindPackage(rb RateBasis) string {
	switch rb {
	case FixedFare:
		return "120km/day"
	case MonthlyPlan:
		return "300km/day"
	case DailyRental:
		return unlimitedKms
	default:
		return "Undefined"
	}
}

var dateLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02 15:04", false},
}

// ParseDate reads an ISO-8601 style date. Date-times without an offset are
// taken to be in IST; a bare date is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	for _, l := range dateLayouts {
		if l.zoned {
			if t, err := time.Parse(l.layout, s); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(l.layout, s, ist); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FormatTime encodes t as the partner expects: /Date(<epoch millis>+0530)/.
func FormatTime(t time.Time) string {
	return fmt.Sprintf("/Date(%d+0530)/", t.UnixMilli())
}

// FormatDate parses s and encodes it with FormatTime.
func FormatDate(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return FormatTime(t), nil
}

// Duration is the whole-hour length of a trip.
type Duration struct {
	Hours int    `json:"hours"`
	Label string `json:"label"`
}

// TripDuration floors the span between start and end to whole hours. An end
// before start yields zero.
func TripDuration(start, end time.Time) Duration {
	diff := end.Sub(start)
	if diff < 0 {
		diff = 0
	}
	total := int(diff / time.Hour)
	return Duration{
		Hours: total,
		Label: fmt.Sprintf("%d Day(s) %d Hour(s)", total/24, total%24),
	}
}
