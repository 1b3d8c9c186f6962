package analytics

import (
	"strings"
	"sync"

	"github.com/pariz/gountries"
)

var (
	countryQuery     *gountries.Query
	countryQueryOnce sync.Once
)

// CountryName returns the common English name for an ISO alpha-2 code, or
// the code itself when it is unknown.
func CountryName(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	countryQueryOnce.Do(func() {
		countryQuery = gountries.New()
	})
	country, err := countryQuery.FindCountryByAlpha(code)
	if err != nil {
		return code
	}
	return country.Name.Common
}
