package mapview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-tablemap/internal/host"
)

func TestPlugin_Lifecycle(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	seen := map[string][]map[string]any{}
	for _, name := range []string{host.EventExpandRow, host.EventClosePlugin} {
		f.hc.Subscribe(name, func(e host.Event) {
			mu.Lock()
			seen[e.Name] = append(seen[e.Name], e.Payload)
			mu.Unlock()
		})
	}

	p, err := Register(context.Background(), f.hc, f.svc, "map-test")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.svc.Markers().Len() == 3 && !f.svc.Progress().Running
	}, 5*time.Second, 10*time.Millisecond, "the default view setting maps the Location column")

	assert.True(t, p.ExpandRow("row-kyoto"))
	assert.False(t, p.ExpandRow("row-missing"))

	f.svc.Markers().Clear()
	f.hc.Publish(host.Event{Name: host.EventDatasetChanged})
	require.Eventually(t, func() bool {
		return f.svc.Markers().Len() == 3
	}, 5*time.Second, 10*time.Millisecond, "a dataset change re-renders")

	p.Close()
	p.Close()

	f.svc.Markers().Clear()
	f.hc.Publish(host.Event{Name: host.EventDatasetChanged})
	time.Sleep(50 * time.Millisecond)
	f.svc.Wait()
	assert.Zero(t, f.svc.Markers().Len(), "closed plugins ignore dataset changes")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen[host.EventExpandRow], 1)
	assert.Equal(t, map[string]any{"table": "Trips", "row_id": "row-kyoto"}, seen[host.EventExpandRow][0])
	require.Len(t, seen[host.EventClosePlugin], 1)
	assert.Equal(t, "map-test", seen[host.EventClosePlugin][0]["plugin"])
}
