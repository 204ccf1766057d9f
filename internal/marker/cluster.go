package marker

import (
	"html/template"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/joeblew999/plat-tablemap/internal/location"
	"github.com/joeblew999/plat-tablemap/internal/templates"
)

const (
	// DefaultRadius is the cluster radius in screen pixels.
	DefaultRadius = 80
	// DefaultZoom is the zoom level clusters are computed at.
	DefaultZoom = 10

	tileSize = 256
)

// Point is a location placed at resolved coordinates.
type Point struct {
	Location location.Location `json:"location"`
	Lat      float64           `json:"lat"`
	Lng      float64           `json:"lng"`
}

// Icon is the image badge of a marker or cluster.
type Icon struct {
	Thumbnail string        `json:"thumbnail,omitempty"`
	Count     int           `json:"count"`
	HTML      template.HTML `json:"html"`
}

// ImageMarker is one point of an image cluster with its own icon.
type ImageMarker struct {
	Point
	Icon Icon `json:"icon"`
}

// Cluster groups nearby image markers under one aggregated icon.
type Cluster struct {
	Lat     float64       `json:"lat"`
	Lng     float64       `json:"lng"`
	Markers []ImageMarker `json:"markers"`
	Icon    Icon          `json:"icon"`
}

// ClusterBuilder groups image-mode points in Web-Mercator pixel space.
type ClusterBuilder struct {
	Radius   float64
	Zoom     int
	renderer *templates.Renderer
}

// NewClusterBuilder creates a builder. Non-positive radius uses
// DefaultRadius; a negative zoom uses DefaultZoom.
func NewClusterBuilder(r *templates.Renderer, radius float64, zoom int) *ClusterBuilder {
	if radius <= 0 {
		radius = DefaultRadius
	}
	if zoom < 0 {
		zoom = DefaultZoom
	}
	return &ClusterBuilder{Radius: radius, Zoom: zoom, renderer: r}
}

// Build clusters points greedily in input order. Points with a zero
// latitude or longitude are dropped.
func (b *ClusterBuilder) Build(points []Point) []Cluster {
	var (
		clusters []Cluster
		seeds    []orb.Point
	)
	for _, p := range points {
		if p.Lat == 0 || p.Lng == 0 {
			continue
		}
		im := ImageMarker{Point: p, Icon: b.icon(p.Location.Images)}
		px := b.pixel(p)

		idx := -1
		for i, s := range seeds {
			if math.Hypot(px[0]-s[0], px[1]-s[1]) <= b.Radius {
				idx = i
				break
			}
		}
		if idx < 0 {
			clusters = append(clusters, Cluster{})
			seeds = append(seeds, px)
			idx = len(clusters) - 1
		}
		clusters[idx].Markers = append(clusters[idx].Markers, im)
	}

	for i := range clusters {
		b.aggregate(&clusters[i])
	}
	return clusters
}

// pixel projects p to global pixel coordinates at the builder's zoom.
func (b *ClusterBuilder) pixel(p Point) orb.Point {
	m := project.Point(orb.Point{p.Lng, p.Lat}, project.WGS84.ToMercator)
	world := float64(tileSize) * math.Exp2(float64(b.Zoom))
	return orb.Point{
		(m[0] + originShift) / (2 * originShift) * world,
		(originShift - m[1]) / (2 * originShift) * world,
	}
}

// originShift is half the Web-Mercator world width in meters.
const originShift = math.Pi * 6378137

// aggregate sums the children's image counts, takes the first non-empty
// thumbnail and centers the cluster on its children.
func (b *ClusterBuilder) aggregate(c *Cluster) {
	var lat, lng float64
	var icon Icon
	for _, m := range c.Markers {
		lat += m.Lat
		lng += m.Lng
		icon.Count += m.Icon.Count
		if icon.Thumbnail == "" {
			icon.Thumbnail = m.Icon.Thumbnail
		}
	}
	n := float64(len(c.Markers))
	c.Lat, c.Lng = lat/n, lng/n
	icon.HTML = b.render(icon)
	c.Icon = icon
}

func (b *ClusterBuilder) icon(images []string) Icon {
	icon := Icon{Count: len(images)}
	if len(images) > 0 {
		icon.Thumbnail = images[0]
	}
	icon.HTML = b.render(icon)
	return icon
}

func (b *ClusterBuilder) render(icon Icon) template.HTML {
	if b.renderer == nil {
		return ""
	}
	h, err := b.renderer.HTML("cluster-icon", icon)
	if err != nil {
		return ""
	}
	return h
}

// ClusterLayer holds the clusters of the last image-mode render. It is
// safe for concurrent use.
type ClusterLayer struct {
	mu       sync.RWMutex
	clusters []Cluster
}

// Set replaces the clusters.
func (l *ClusterLayer) Set(c []Cluster) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clusters = c
}

// Clear removes every cluster.
func (l *ClusterLayer) Clear() { l.Set(nil) }

// Clusters returns the current clusters.
func (l *ClusterLayer) Clusters() []Cluster {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Cluster, len(l.clusters))
	copy(out, l.clusters)
	return out
}
