package mapview

import (
	"context"
	"fmt"

	"github.com/joeblew999/plat-tablemap/internal/geocode"
	"github.com/joeblew999/plat-tablemap/internal/service"
)

// ToastGeolocationDenied is shown when the browser refuses the position.
const ToastGeolocationDenied = "Location access was denied. Allow it in the browser to show your position."

// Center is a map center.
type Center struct {
	Lat float64 `json:"lat" doc:"Latitude"`
	Lng float64 `json:"lng" doc:"Longitude"`
}

// UserLocation is the reported position of the current user.
type UserLocation struct {
	Lat     float64 `json:"lat" doc:"Latitude"`
	Lng     float64 `json:"lng" doc:"Longitude"`
	Address string  `json:"address,omitempty" doc:"Reverse geocoded address"`
}

// State is the map presentation sent to the client.
type State struct {
	Center       Center        `json:"center" doc:"Initial map center"`
	Zoom         int           `json:"zoom" doc:"Initial zoom"`
	CenterSource string        `json:"center_source" enum:"viewport,markers,geocode,default" doc:"Where the center came from"`
	TileURL      string        `json:"tile_url" doc:"XYZ tile template for the locale"`
	Banner       string        `json:"banner,omitempty" doc:"Banner text"`
	Toast        string        `json:"toast,omitempty" doc:"One-shot notice"`
	UserLocation *UserLocation `json:"user_location,omitempty" doc:"Current user position"`
	Progress     Progress      `json:"progress" doc:"Render progress"`
}

// State resolves the initial map state for locale. The center comes from
// the saved viewport, then the bound of the placed markers, then the
// first of a few addresses that geocodes.
func (s *Service) State(ctx context.Context, locale string) State {
	st := State{
		Zoom:         s.opts.DefaultZoom,
		CenterSource: "default",
		Banner:       s.Banner(),
		Progress:     s.Progress(),
	}
	if s.opts.TileURL != nil {
		st.TileURL = s.opts.TileURL(locale)
	}

	s.mu.Lock()
	st.UserLocation = s.user
	st.Toast, s.toast = s.toast, ""
	s.mu.Unlock()

	if s.viewports != nil {
		if vp, ok := s.viewports.Get(s.hc.DatasetID()); ok {
			st.Center = Center{Lat: vp.Lat, Lng: vp.Lng}
			st.CenterSource = "viewport"
			if vp.Zoom > 0 {
				st.Zoom = vp.Zoom
			}
			return st
		}
	}

	if b, ok := s.markers.Bound(); ok {
		c := b.Center()
		st.Center = Center{Lat: c.Lat(), Lng: c.Lon()}
		st.CenterSource = "markers"
		return st
	}
	for _, cl := range s.Clusters() {
		st.Center = Center{Lat: cl.Lat, Lng: cl.Lng}
		st.CenterSource = "markers"
		return st
	}

	if c, ok := s.sampleCenter(ctx); ok {
		st.Center = c
		st.CenterSource = "geocode"
	}
	return st
}

func (s *Service) sampleCenter(ctx context.Context) (Center, bool) {
	if s.geocoder == nil || s.opts.CenterSample <= 0 {
		return Center{}, false
	}
	tried := 0
	for _, loc := range s.Locations() {
		if tried >= s.opts.CenterSample {
			break
		}
		if !loc.Type.NeedsGeocoding() {
			continue
		}
		addr := loc.Address()
		if addr == "" {
			continue
		}
		tried++
		res, err := s.geocoder.Geocode(ctx, addr)
		if err != nil || res.Status != geocode.StatusOK {
			continue
		}
		return Center{Lat: res.Lat, Lng: res.Lng}, true
	}
	return Center{}, false
}

// SaveViewport remembers the map position of the current dataset.
func (s *Service) SaveViewport(vp service.Viewport) error {
	if s.viewports == nil {
		return nil
	}
	if err := s.viewports.Set(s.hc.DatasetID(), vp); err != nil {
		return fmt.Errorf("failed to save viewport: %w", err)
	}
	return nil
}

// SetUserLocation records the browser position. A denied request clears
// the position and queues a toast.
func (s *Service) SetUserLocation(ctx context.Context, lat, lng float64, denied bool) UserLocation {
	if denied {
		s.mu.Lock()
		s.user = nil
		s.toast = ToastGeolocationDenied
		s.mu.Unlock()
		return UserLocation{}
	}

	ul := UserLocation{Lat: lat, Lng: lng}
	if s.geocoder != nil {
		addr, err := s.geocoder.Reverse(ctx, lat, lng)
		if err != nil {
			s.logger.Debug("reverse geocode failed", "error", err)
		}
		ul.Address = addr
	}

	s.mu.Lock()
	s.user = &ul
	s.mu.Unlock()
	return ul
}

// ClearUserLocation removes the user marker.
func (s *Service) ClearUserLocation() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}
