package location

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/joeblew999/plat-tablemap/internal/host"
)

// Type is the address type of a location, taken from the geo column's
// geo_format.
type Type string

const (
	TypeLatLng        Type = host.GeoFormatLatLng
	TypeAddress       Type = host.GeoFormatAddress
	TypeCountryRegion Type = host.GeoFormatCountryRegion
	TypeProvince      Type = host.GeoFormatProvince
	TypeProvinceCity  Type = host.GeoFormatProvinceCity
)

// TypeOf returns the address type of a geolocation column. Columns
// without a known geo_format hold raw coordinates.
func TypeOf(col *host.Column) Type {
	switch t := Type(col.Data.GeoFormat); t {
	case TypeAddress, TypeCountryRegion, TypeProvince, TypeProvinceCity:
		return t
	}
	return TypeLatLng
}

// NeedsGeocoding reports whether locations of this type carry an address
// instead of coordinates.
func (t Type) NeedsGeocoding() bool { return t != TypeLatLng }

// GeoValue is a parsed geolocation cell.
type GeoValue struct {
	Lat       float64
	Lng       float64
	HasCoords bool

	CountryRegion string
	Province      string
	City          string
	District      string
	Detail        string
	// Text holds a plain string address.
	Text string
}

// ParseGeoValue reads a raw cell. Coordinates may be numbers or numeric
// strings.
func ParseGeoValue(v any) GeoValue {
	switch x := v.(type) {
	case nil:
		return GeoValue{}
	case string:
		return GeoValue{Text: strings.TrimSpace(x)}
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return GeoValue{}
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return GeoValue{Text: strings.TrimSpace(res.String())}
	}

	g := GeoValue{
		CountryRegion: strings.TrimSpace(res.Get("country_region").String()),
		Province:      strings.TrimSpace(res.Get("province").String()),
		City:          strings.TrimSpace(res.Get("city").String()),
		District:      strings.TrimSpace(res.Get("district").String()),
		Detail:        strings.TrimSpace(res.Get("detail").String()),
	}
	lat, okLat := coord(res.Get("lat"))
	lng, okLng := coord(res.Get("lng"))
	if okLat && okLng {
		g.Lat, g.Lng, g.HasCoords = lat, lng, true
	}
	return g
}

func coord(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Float(), true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		return f, err == nil
	}
	return 0, false
}

// FormattedAddress renders the value as a one-line address for t.
func (g GeoValue) FormattedAddress(t Type) string {
	switch t {
	case TypeLatLng:
		if !g.HasCoords {
			return ""
		}
		return strconv.FormatFloat(g.Lat, 'f', -1, 64) + ", " + strconv.FormatFloat(g.Lng, 'f', -1, 64)
	case TypeCountryRegion:
		return firstNonEmpty(g.CountryRegion, g.Text)
	case TypeProvince:
		return firstNonEmpty(g.Province, g.Text)
	case TypeProvinceCity:
		if s := joinNonEmpty(g.Province, g.City); s != "" {
			return s
		}
		return g.Text
	default:
		if g.Text != "" {
			return g.Text
		}
		return joinNonEmpty(g.Province, g.City, g.District, g.Detail)
	}
}

// Empty reports whether there is nothing to place for type t.
func (g GeoValue) Empty(t Type) bool {
	return g.FormattedAddress(t) == ""
}

// MarshalJSON emits only the populated fields.
func (g GeoValue) MarshalJSON() ([]byte, error) {
	if g.Text != "" && !g.HasCoords && g.CountryRegion == "" && g.Province == "" {
		return json.Marshal(g.Text)
	}
	m := make(map[string]any)
	if g.HasCoords {
		m["lat"], m["lng"] = g.Lat, g.Lng
	}
	for k, v := range map[string]string{
		"country_region": g.CountryRegion,
		"province":       g.Province,
		"city":           g.City,
		"district":       g.District,
		"detail":         g.Detail,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads any form MarshalJSON or a raw cell produces.
func (g *GeoValue) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*g = ParseGeoValue(v)
	return nil
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
