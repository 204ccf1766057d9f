// Package marker keeps the map's marker layer: one visible marker per
// distinct coordinate, with every row placed there remembered for the
// same-location panel, and the image clusters of image mode.
package marker

import (
	"html/template"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-tablemap/internal/host"
	"github.com/joeblew999/plat-tablemap/internal/location"
	"github.com/joeblew999/plat-tablemap/internal/templates"
)

// Palette is the set of marker colors with a dedicated icon asset.
// Palette[i] is drawn by marker-<i+1>.png.
var Palette = []string{
	"#E83A3A", "#FF8000", "#FFD700", "#59CB74", "#2A66F0",
	"#9860E5", "#F76E9E", "#42C0FB", "#999999", "#1F1F1F",
}

// DefaultIcon draws colors outside the palette.
const DefaultIcon = "marker.png"

// IconFor returns the icon asset for a marker color.
func IconFor(color string) string {
	i := slices.IndexFunc(Palette, func(c string) bool { return strings.EqualFold(c, color) })
	if i < 0 {
		return DefaultIcon
	}
	return "marker-" + strconv.Itoa(i+1) + ".png"
}

// Popup triggers.
const (
	OpenOnHover = "hover"
	OpenOnTap   = "tap"
)

// Marker is one visible marker.
type Marker struct {
	Key     string        `json:"key"`
	Lat     float64       `json:"lat"`
	Lng     float64       `json:"lng"`
	Address string        `json:"address"`
	RowID   string        `json:"row_id"`
	Name    string        `json:"name"`
	Color   string        `json:"color"`
	Icon    string        `json:"icon"`
	Popup   template.HTML `json:"popup"`
	OpenOn  string        `json:"open_on"`
	// Tooltip is the permanent label bound beside the marker.
	Tooltip template.HTML `json:"tooltip,omitempty"`
}

// Key returns the dedup key of a coordinate. Coordinates only share a
// marker when they are exactly equal.
func Key(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}

// Publisher receives marker interaction events.
type Publisher interface {
	Publish(e host.Event)
}

// Layer holds the placed markers. It is safe for concurrent use.
type Layer struct {
	renderer *templates.Renderer
	pub      Publisher
	touch    bool

	mu      sync.RWMutex
	markers []*Marker
	byKey   map[string]*Marker
	same    map[string][]location.Location
}

// NewLayer creates an empty layer. Touch layers open popups on tap
// instead of hover.
func NewLayer(r *templates.Renderer, pub Publisher, touch bool) *Layer {
	return &Layer{
		renderer: r,
		pub:      pub,
		touch:    touch,
		byKey:    make(map[string]*Marker),
		same:     make(map[string][]location.Location),
	}
}

type popupData struct {
	Address string
	Labels  []*location.Label
}

// AddMarker places loc at lat, lng. The first location at a coordinate
// creates the marker; later ones only join its same-location list.
// It reports whether a new marker was created.
func (l *Layer) AddMarker(loc location.Location, lat, lng float64, address string) bool {
	key := Key(lat, lng)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.same[key] = append(l.same[key], loc)
	if _, ok := l.byKey[key]; ok {
		return false
	}

	m := &Marker{
		Key:     key,
		Lat:     lat,
		Lng:     lng,
		Address: address,
		RowID:   loc.RowID,
		Name:    loc.Name,
		Color:   loc.Color,
		Icon:    IconFor(loc.Color),
		OpenOn:  OpenOnHover,
		Tooltip: loc.DirectShownLabel,
	}
	if l.touch {
		m.OpenOn = OpenOnTap
	}
	if popup, err := l.renderer.HTML("location-popup", popupData{Address: address, Labels: loc.Labels}); err == nil {
		m.Popup = popup
	}

	l.markers = append(l.markers, m)
	l.byKey[key] = m
	return true
}

// Clear removes every marker.
func (l *Layer) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markers = nil
	l.byKey = make(map[string]*Marker)
	l.same = make(map[string][]location.Location)
}

// Len returns the number of visible markers.
func (l *Layer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.markers)
}

// Markers returns a snapshot of the markers in placement order.
func (l *Layer) Markers() []Marker {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Marker, len(l.markers))
	for i, m := range l.markers {
		out[i] = *m
	}
	return out
}

// SameLocation returns every location placed at lat, lng.
func (l *Layer) SameLocation(lat, lng float64) []location.Location {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.same[Key(lat, lng)])
}

// Click handles a click on the marker at lat, lng: it publishes a
// show-location-details event and returns the rows placed there.
func (l *Layer) Click(lat, lng float64) ([]location.Location, bool) {
	locs := l.SameLocation(lat, lng)
	if len(locs) == 0 {
		return nil, false
	}
	if l.pub != nil {
		l.pub.Publish(host.Event{Name: host.EventShowLocationDetails, Payload: map[string]any{
			"lat":   lat,
			"lng":   lng,
			"count": len(locs),
		}})
	}
	return locs, true
}

// FeatureCollection returns the markers as GeoJSON points.
func (l *Layer) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range l.Markers() {
		f := geojson.NewFeature(orb.Point{m.Lng, m.Lat})
		f.ID = m.Key
		f.Properties["row_id"] = m.RowID
		f.Properties["name"] = m.Name
		f.Properties["address"] = m.Address
		f.Properties["color"] = m.Color
		f.Properties["icon"] = m.Icon
		f.Properties["open_on"] = m.OpenOn
		f.Properties["count"] = len(l.SameLocation(m.Lat, m.Lng))
		if m.Tooltip != "" {
			f.Properties["tooltip"] = string(m.Tooltip)
		}
		fc.Append(f)
	}
	return fc
}

// Bound returns the bounding box of the markers.
func (l *Layer) Bound() (orb.Bound, bool) {
	markers := l.Markers()
	if len(markers) == 0 {
		return orb.Bound{}, false
	}
	mp := make(orb.MultiPoint, len(markers))
	for i, m := range markers {
		mp[i] = orb.Point{m.Lng, m.Lat}
	}
	return mp.Bound(), true
}
