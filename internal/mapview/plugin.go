package mapview

import (
	"context"
	"sync"

	"github.com/joeblew999/plat-tablemap/internal/host"
	"github.com/joeblew999/plat-tablemap/internal/settings"
)

// Plugin binds a Service to the host lifecycle: dataset changes re-render
// the map, marker clicks can expand rows and Close tears everything down.
type Plugin struct {
	Name string

	svc *Service
	hc  host.Context

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

// Register subscribes svc to host events and starts the first render.
func Register(ctx context.Context, hc host.Context, svc *Service, name string) (*Plugin, error) {
	p := &Plugin{Name: name, svc: svc, hc: hc}
	p.unsubs = append(p.unsubs, hc.Subscribe(host.EventDatasetChanged, func(host.Event) {
		if err := svc.Start(context.Background()); err != nil {
			svc.logger.Error("failed to re-render after dataset change", "error", err)
		}
	}))
	if err := svc.Start(ctx); err != nil {
		p.Close()
		return nil, err
	}
	svc.logger.Info("Plugin registered", "plugin", name, "dataset", hc.DatasetID())
	return p, nil
}

// ExpandRow asks the host to open the row behind a marker.
func (p *Plugin) ExpandRow(rowID string) bool {
	items := p.svc.Items()
	t := p.hc.TableByName(items.Active(settings.TypeTable))
	if t == nil || p.hc.RowByID(t, rowID) == nil {
		return false
	}
	p.hc.Publish(host.Event{Name: host.EventExpandRow, Payload: map[string]any{
		"table":  t.Name,
		"row_id": rowID,
	}})
	return true
}

// Close cancels rendering, drops subscriptions and notifies the host.
// Calling it twice is a no-op.
func (p *Plugin) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	unsubs := p.unsubs
	p.unsubs = nil
	p.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	p.svc.Stop()
	p.hc.Publish(host.Event{Name: host.EventClosePlugin, Payload: map[string]any{"plugin": p.Name}})
}
