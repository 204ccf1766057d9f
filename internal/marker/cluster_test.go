package marker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-tablemap/internal/location"
)

func imagePoint(id string, lat, lng float64, images ...string) Point {
	return Point{Location: location.Location{RowID: id, Images: images}, Lat: lat, Lng: lng}
}

func TestBuild_AggregatesCounts(t *testing.T) {
	b := NewClusterBuilder(renderer(t), 0, -1)
	clusters := b.Build([]Point{
		imagePoint("r1", 35.0000, 139.0000, "https://img/1a.jpg", "https://img/1b.jpg"),
		imagePoint("r2", 35.0001, 139.0001),
		imagePoint("r3", 35.0002, 139.0002, "https://img/3.jpg"),
	})

	require.Len(t, clusters, 1)
	c := clusters[0]
	assert.Len(t, c.Markers, 3)
	assert.Equal(t, 3, c.Icon.Count)
	assert.Equal(t, "https://img/1a.jpg", c.Icon.Thumbnail)
	assert.Contains(t, string(c.Icon.HTML), ">3<")

	assert.Equal(t, 2, c.Markers[0].Icon.Count)
	assert.Equal(t, 0, c.Markers[1].Icon.Count)
	assert.Empty(t, c.Markers[1].Icon.Thumbnail)
}

func TestBuild_ThumbnailSkipsEmptyChildren(t *testing.T) {
	b := NewClusterBuilder(renderer(t), 0, -1)
	clusters := b.Build([]Point{
		imagePoint("r1", 35.0, 139.0),
		imagePoint("r2", 35.0001, 139.0, "https://img/2.jpg"),
	})
	require.Len(t, clusters, 1)
	assert.Equal(t, "https://img/2.jpg", clusters[0].Icon.Thumbnail)
}

func TestBuild_SeparatesDistantPoints(t *testing.T) {
	b := NewClusterBuilder(renderer(t), 80, 10)
	clusters := b.Build([]Point{
		imagePoint("tokyo", 35.6895, 139.6917, "a"),
		imagePoint("paris", 48.8566, 2.3522, "b"),
		imagePoint("shinjuku", 35.6896, 139.6918, "c"),
	})
	require.Len(t, clusters, 2)
	assert.Equal(t, 2, clusters[0].Icon.Count)
	assert.Equal(t, "paris", clusters[1].Markers[0].Location.RowID)
}

func TestBuild_DropsZeroCoordinates(t *testing.T) {
	b := NewClusterBuilder(renderer(t), 0, -1)
	clusters := b.Build([]Point{
		imagePoint("equator", 0, 10, "a"),
		imagePoint("meridian", 10, 0, "b"),
		imagePoint("ok", 10, 10, "c"),
	})
	require.Len(t, clusters, 1)
	require.Len(t, clusters[0].Markers, 1)
	assert.Equal(t, "ok", clusters[0].Markers[0].Location.RowID)
}

func TestBuild_RadiusDependsOnZoom(t *testing.T) {
	pts := []Point{imagePoint("a", 35.0, 139.0), imagePoint("b", 35.0, 139.05)}

	assert.Len(t, NewClusterBuilder(nil, 80, 8).Build(pts), 1)
	assert.Len(t, NewClusterBuilder(nil, 80, 16).Build(pts), 2)
}

func TestClusterLayer(t *testing.T) {
	var l ClusterLayer
	l.Set([]Cluster{{Lat: 1}})
	assert.Len(t, l.Clusters(), 1)
	l.Clear()
	assert.Empty(t, l.Clusters())
}
