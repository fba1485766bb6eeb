package canon

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// cityAliases maps display names to the partner's city identifiers.
var cityAliases = map[string]string{
	"bengaluru": "bangalore",
	"gurugram":  "gurgaon",
}

// Title upper-cases the first letter of every word and lower-cases the rest:
// "MARUTI" -> "Maruti", "swift dzire" -> "Swift Dzire".
func Title(s string) string {
	s = collapseSpaces(s)
	if s == "" {
		return ""
	}
	return titleCaser.String(s)
}

// City normalizes a city name into the form the partner expects.
func City(city string) string {
	c := strings.ToLower(collapseSpaces(city))
	if alias, ok := cityAliases[c]; ok {
		return alias
	}
	return c
}

// SearchKey builds a stable cache key for a search.
func SearchKey(kind, city, pick, drop string, hours float64) string {
	return fmt.Sprintf("mychoize:%s:%s:%s:%s:%s", kind, City(city), pick, drop, strconv.FormatFloat(hours, 'f', -1, 64))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
