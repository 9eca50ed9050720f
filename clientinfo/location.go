// Copyright 2025 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2025 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package clientinfo

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
	"github.com/rs/zerolog/log"

	"ustatproc/record"
)

const (
	unknownCountry  = "--"
	unknownPosition = -180
)

var continentCodes = map[string]string{
	"africa":        "AF",
	"antarctica":    "AN",
	"asia":          "AS",
	"europe":        "EU",
	"north america": "NA",
	"south america": "SA",
	"oceania":       "OC",
	"australia":     "OC",
}

// CityLocator is the part of geoip2.Reader used for geolocation
type CityLocator interface {
	City(ip net.IP) (*geoip2.City, error)
}

// Locator finds locations of IP addresses
type Locator struct {
	db        CityLocator
	countries *gountries.Query
	closer    func() error
}

func NewLocator(db CityLocator) *Locator {
	return &Locator{
		db:        db,
		countries: gountries.New(),
	}
}

// OpenLocator opens a GeoIP2/GeoLite2 City database
func OpenLocator(dbPath string) (*Locator, error) {
	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	ans := NewLocator(db)
	ans.closer = db.Close
	return ans, nil
}

func (loc *Locator) continentOf(countryCode, fallback string) string {
	country, err := loc.countries.FindCountryByAlpha(countryCode)
	if err != nil {
		log.Debug().Err(err).Str("country", countryCode).Msg("unknown country, using GeoIP continent")
		return fallback
	}
	for _, name := range []string{country.Geo.Continent, country.Geo.SubRegion, country.Geo.Region} {
		if code, ok := continentCodes[strings.ToLower(name)]; ok {
			return code
		}
	}
	return fallback
}

// Geolocate returns the location of ip. Unknown locations
// (including the "--" country with -180/-180 coordinates) result
// in ok == false.
func (loc *Locator) Geolocate(ip string) (record.GeoLocation, bool) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		log.Debug().Str("ip", ip).Msg("cannot geolocate malformed address")
		return record.GeoLocation{}, false
	}
	city, err := loc.db.City(parsed)
	if err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("failed to fetch GeoIP data")
		return record.GeoLocation{}, false
	}
	code := city.Country.IsoCode
	if code == "" {
		code = unknownCountry
	}
	if code == unknownCountry &&
		(city.Location.Latitude == unknownPosition && city.Location.Longitude == unknownPosition ||
			city.Location.Latitude == 0 && city.Location.Longitude == 0) {
		return record.GeoLocation{}, false
	}
	return record.GeoLocation{
		CountryCode: code,
		City:        city.City.Names["en"],
		Continent:   loc.continentOf(code, city.Continent.Code),
		Latitude:    city.Location.Latitude,
		Longitude:   city.Location.Longitude,
	}, true
}

func (loc *Locator) Close() error {
	if loc.closer != nil {
		return loc.closer()
	}
	return nil
}
