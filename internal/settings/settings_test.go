package settings

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-tablemap/internal/host"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleHost() *host.Memory {
	return host.NewMemory(host.SampleDataset(), nil)
}

func optionIDs(it ConfigItem) []string {
	ids := make([]string, len(it.Settings))
	for i, o := range it.Settings {
		ids[i] = o.ID
	}
	return ids
}

func TestInitSelectedSettings_DefaultMode(t *testing.T) {
	hc := sampleHost()
	items := InitSelectedSettings(hc, ViewSetting{TableName: "Trips", ViewName: "Asia", ColumnName: "Country"})

	assert.Equal(t, []ConfigType{
		TypeMapMode, TypeTable, TypeView, TypeColumn,
		TypeMarkDependence, TypeDirectShownColumn, TypeShownColumns,
	}, items.Types())

	assert.Equal(t, MapModeDefault, items.MapMode())
	assert.Equal(t, "Trips", items.Active(TypeTable))
	assert.Equal(t, "Asia", items.Active(TypeView))
	assert.Equal(t, "Country", items.Active(TypeColumn))
	assert.Equal(t, NotUsed, items.Active(TypeMarkDependence))
	assert.Equal(t, NotUsed, items.Active(TypeDirectShownColumn))

	col, _ := items.Get(TypeColumn)
	assert.Equal(t, []string{"Location", "Address", "Country"}, optionIDs(col))
	mark, _ := items.Get(TypeMarkDependence)
	assert.Equal(t, []string{NotUsed, RowColor, "Region"}, optionIDs(mark))
	direct, _ := items.Get(TypeDirectShownColumn)
	assert.Equal(t, []string{NotUsed, "Name", "Region"}, optionIDs(direct))
	view, _ := items.Get(TypeView)
	assert.Equal(t, []string{"All", "Asia"}, optionIDs(view), "archive views are not offered")
}

func TestInitSelectedSettings_ImageMode(t *testing.T) {
	hc := sampleHost()
	items := InitSelectedSettings(hc, ViewSetting{MapMode: MapModeImage, TableName: "Trips", ViewName: "All"})

	assert.Equal(t, []ConfigType{
		TypeMapMode, TypeTable, TypeView, TypeColumn, TypeImageColumn, TypeShownColumns,
	}, items.Types())
	assert.Equal(t, "Photos", items.Active(TypeImageColumn))
	assert.Equal(t, "Location", items.Active(TypeColumn))
}

func TestInitSelectedSettings_FallsBackToActive(t *testing.T) {
	hc := sampleHost()
	items := InitSelectedSettings(hc, ViewSetting{TableName: "Deleted", ViewName: "Gone", ColumnName: "Nope"})

	assert.Equal(t, "Trips", items.Active(TypeTable))
	assert.Equal(t, "All", items.Active(TypeView))
	assert.Equal(t, "Location", items.Active(TypeColumn))
}

func TestInitSelectedSettings_ShownColumnsKeepSavedOrder(t *testing.T) {
	hc := sampleHost()
	items := InitSelectedSettings(hc, ViewSetting{
		TableName: "Trips",
		ViewName:  "All",
		ShownColumns: []ShownColumn{
			{Key: host.SampleDate, Active: true},
			{Key: "deleted-column", Active: true},
			{Key: host.SampleName, Active: true},
			{Key: host.SampleNotes},
		},
	})

	shown := items.ShownColumns()
	require.Len(t, shown, 2)
	assert.Equal(t, "Date", shown[0].Name)
	assert.Equal(t, "Name", shown[1].Name)

	it, _ := items.Get(TypeShownColumns)
	assert.Len(t, it.Settings, 9)
	assert.Equal(t, host.SampleNotes, it.Settings[2].ID)
}

func TestInitSelectedSettings_ActiveAlwaysValid(t *testing.T) {
	hc := sampleHost()
	tables := []string{"Trips", "Contacts", "Missing", ""}
	views := []string{"All", "Asia", "Archived", "Default", "Missing", ""}
	columns := []string{"Location", "Country", "Email", "Region", "Missing", ""}
	marks := []string{NotUsed, RowColor, "Region", "Name", "Missing", ""}
	modes := []MapMode{MapModeDefault, MapModeImage, "bogus"}

	for _, tb := range tables {
		for _, v := range views {
			for _, c := range columns {
				for _, m := range marks {
					for _, mode := range modes {
						items := InitSelectedSettings(hc, ViewSetting{
							MapMode: mode, TableName: tb, ViewName: v, ColumnName: c,
							MarkDependence: m, DirectShownColumnName: m, ImageColumnName: c,
						})
						for _, it := range items {
							assert.Truef(t, it.Valid(), "%s active %q not in settings (%s/%s/%s/%s/%s)",
								it.Type, it.Active, tb, v, c, m, mode)
						}
					}
				}
			}
		}
	}
}

func TestInitSelectedSettings_TableWithoutGeoColumns(t *testing.T) {
	hc := sampleHost()
	items := InitSelectedSettings(hc, ViewSetting{TableName: "Contacts"})

	col, ok := items.Get(TypeColumn)
	require.True(t, ok)
	assert.Empty(t, col.Settings)
	assert.Equal(t, "", col.Active)
	assert.True(t, col.Valid())
}

func TestUpdateSelectedSettings_TableChangeRecomputesDownstream(t *testing.T) {
	hc := sampleHost()
	items := InitSelectedSettings(hc, ViewSetting{TableName: "Trips", ViewName: "Asia", ColumnName: "Country", MarkDependence: "Region"})
	before := items.Clone()

	out := UpdateSelectedSettings(hc, items, TableChanged{Table: "Contacts"})

	assert.Equal(t, before, items, "input list must not change")
	assert.Equal(t, "Contacts", out.Active(TypeTable))
	assert.Equal(t, "Default", out.Active(TypeView))
	assert.Equal(t, "", out.Active(TypeColumn))
	assert.Equal(t, NotUsed, out.Active(TypeMarkDependence))
	direct, _ := out.Get(TypeDirectShownColumn)
	assert.Equal(t, []string{NotUsed, "Name"}, optionIDs(direct))
	shown, _ := out.Get(TypeShownColumns)
	assert.Equal(t, []string{host.SampleName, "mail"}, optionIDs(shown))
}

func TestUpdateSelectedSettings_UnknownTableIsIgnored(t *testing.T) {
	hc := sampleHost()
	items := InitSelectedSettings(hc, ViewSetting{TableName: "Trips"})
	assert.Equal(t, items, UpdateSelectedSettings(hc, items, TableChanged{Table: "Nope"}))
}

func TestUpdateSelectedSettings_SameMapModeIsNoop(t *testing.T) {
	hc := sampleHost()
	items := InitSelectedSettings(hc, ViewSetting{TableName: "Trips", MarkDependence: "Region"})

	out := UpdateSelectedSettings(hc, items, MapModeChanged{Mode: MapModeDefault})
	assert.Equal(t, items, out)
}

func TestUpdateSelectedSettings_MapModeRoundTrip(t *testing.T) {
	hc := sampleHost()
	items := InitSelectedSettings(hc, ViewSetting{TableName: "Trips", MarkDependence: "Region", DirectShownColumnName: "Name"})

	image := UpdateSelectedSettings(hc, items, MapModeChanged{Mode: MapModeImage})
	assert.Equal(t, []ConfigType{
		TypeMapMode, TypeTable, TypeView, TypeColumn, TypeImageColumn, TypeShownColumns,
	}, image.Types())
	assert.Equal(t, "Photos", image.Active(TypeImageColumn))

	back := UpdateSelectedSettings(hc, image, MapModeChanged{Mode: MapModeDefault})
	assert.Equal(t, items.Types(), back.Types())
	assert.Equal(t, NotUsed, back.Active(TypeMarkDependence), "mark dependence is reset")
	assert.Equal(t, NotUsed, back.Active(TypeDirectShownColumn))
	for _, it := range back {
		assert.True(t, it.Valid())
	}
}

func TestUpdateSelectedSettings_Selections(t *testing.T) {
	hc := sampleHost()
	items := InitSelectedSettings(hc, ViewSetting{TableName: "Trips"})

	out := UpdateSelectedSettings(hc, items, ViewChanged{View: "Asia"})
	assert.Equal(t, "Asia", out.Active(TypeView))

	out = UpdateSelectedSettings(hc, out, OptionSelected{Type: TypeMarkDependence, Option: RowColor})
	assert.Equal(t, RowColor, out.Active(TypeMarkDependence))

	out = UpdateSelectedSettings(hc, out, OptionSelected{Type: TypeColumn, Option: "Missing"})
	assert.Equal(t, "Location", out.Active(TypeColumn), "unknown options are ignored")
}

func TestUpdateSelectedSettings_ViewChangeRebuildsShownColumns(t *testing.T) {
	ds := host.SampleDataset()
	ds.Tables[0].Views[1].HiddenColumns = []string{host.SampleNotes}
	hc := host.NewMemory(ds, nil)
	items := InitSelectedSettings(hc, ViewSetting{TableName: "Trips", ViewName: "All"})
	items = UpdateSelectedSettings(hc, items, ShownColumnToggled{Key: host.SampleName, Active: true})

	all, _ := items.Get(TypeShownColumns)
	assert.Contains(t, optionIDs(all), host.SampleNotes)

	out := UpdateSelectedSettings(hc, items, ViewChanged{View: "Asia"})
	shown, _ := out.Get(TypeShownColumns)
	assert.NotContains(t, optionIDs(shown), host.SampleNotes, "columns hidden in the new view are dropped")
	require.NotEmpty(t, out.ShownColumns())
	assert.Equal(t, host.SampleName, out.ShownColumns()[0].ID, "toggled columns carry over")

	back := UpdateSelectedSettings(hc, out, ViewChanged{View: "All"})
	shown, _ = back.Get(TypeShownColumns)
	assert.Contains(t, optionIDs(shown), host.SampleNotes)
}

func TestUpdateSelectedSettings_ShownColumns(t *testing.T) {
	hc := sampleHost()
	items := InitSelectedSettings(hc, ViewSetting{TableName: "Trips"})

	out := UpdateSelectedSettings(hc, items, ShownColumnToggled{Key: host.SampleNotes, Active: true})
	out = UpdateSelectedSettings(hc, out, ShownColumnToggled{Key: host.SampleName, Active: true})
	out = UpdateSelectedSettings(hc, out, ShownColumnsReordered{Keys: []string{host.SampleNotes, host.SampleName}})

	shown := out.ShownColumns()
	require.Len(t, shown, 2)
	assert.Equal(t, "Notes", shown[0].Name)
	assert.Equal(t, "Name", shown[1].Name)
	assert.Empty(t, items.ShownColumns())
}

func TestChangeRequest_Event(t *testing.T) {
	yes := true
	tests := []struct {
		name    string
		req     ChangeRequest
		want    ConfigChangeEvent
		wantErr bool
	}{
		{"map mode", ChangeRequest{Type: TypeMapMode, Option: "image"}, MapModeChanged{Mode: MapModeImage}, false},
		{"bad map mode", ChangeRequest{Type: TypeMapMode, Option: "satellite"}, nil, true},
		{"table", ChangeRequest{Type: TypeTable, Option: "Trips"}, TableChanged{Table: "Trips"}, false},
		{"image column", ChangeRequest{Type: TypeImageColumn, Option: "Photos"}, OptionSelected{Type: TypeImageColumn, Option: "Photos"}, false},
		{"toggle", ChangeRequest{Type: TypeShownColumns, Option: "k", Active: &yes}, ShownColumnToggled{Key: "k", Active: true}, false},
		{"reorder", ChangeRequest{Type: TypeShownColumns, Order: []string{"b", "a"}}, ShownColumnsReordered{Keys: []string{"b", "a"}}, false},
		{"toggle without flag", ChangeRequest{Type: TypeShownColumns, Option: "k"}, nil, true},
		{"unknown", ChangeRequest{Type: "zoom"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.Event()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToViewSetting(t *testing.T) {
	hc := sampleHost()
	items := InitSelectedSettings(hc, ViewSetting{MapMode: MapModeImage, TableName: "Trips", ViewName: "Asia"})

	vs := ToViewSetting(items, ViewSetting{ID: "v1", Name: "Photos", ShowUserLocation: true})
	assert.Equal(t, "v1", vs.ID)
	assert.True(t, vs.ShowUserLocation)
	assert.Equal(t, MapModeImage, vs.MapMode)
	assert.Equal(t, "Asia", vs.ViewName)
	assert.Equal(t, "Photos", vs.ImageColumnName)
	assert.Len(t, vs.ShownColumns, 9)

	// folding back and expanding again is stable
	assert.Equal(t, items, InitSelectedSettings(hc, vs))
}

type fixedSelection map[string]int

func (f fixedSelection) Selected(id string) (int, bool) {
	i, ok := f[id]
	return i, ok
}

func TestInitPluginSettings_FirstRun(t *testing.T) {
	hc := sampleHost()
	state, err := InitPluginSettings(context.Background(), hc, "map", nil, testLogger())
	require.NoError(t, err)

	assert.True(t, state.ShowSetup)
	require.Len(t, state.Views, 1)
	vs := state.Views[0]
	assert.NotEmpty(t, vs.ID)
	assert.Equal(t, DefaultViewName, vs.Name)
	assert.Equal(t, "Trips", vs.TableName)
	assert.Equal(t, "All", vs.ViewName)
	assert.Equal(t, "Location", vs.ColumnName)
	assert.NoError(t, Validate(vs))
}

func TestInitPluginSettings_DropsStaleAndClamps(t *testing.T) {
	ctx := context.Background()
	hc := sampleHost()
	doc := Document{Views: []ViewSetting{
		{ID: "a", Name: "A", TableName: "Trips", ViewName: "All", ColumnName: "Location"},
		{ID: "b", Name: "B", TableName: "Trips", ViewName: "Removed"},
		{ID: "c", Name: "C", TableName: "Trips", ViewName: "Asia", ColumnName: "Country"},
		{ID: "d", Name: "D", TableName: "Trips", ViewName: "All", ColumnName: "Renamed"},
	}}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, hc.UpdatePluginSettings(ctx, "map", raw))

	state, err := InitPluginSettings(ctx, hc, "map", fixedSelection{"sample": 7}, testLogger())
	require.NoError(t, err)

	assert.False(t, state.ShowSetup)
	assert.Equal(t, 2, state.Dropped)
	require.Len(t, state.Views, 2)
	assert.Equal(t, "a", state.Views[0].ID)
	assert.Equal(t, "c", state.Views[1].ID)
	assert.Equal(t, 1, state.Selected)
}

func TestInitPluginSettings_CorruptBlob(t *testing.T) {
	ctx := context.Background()
	hc := sampleHost()
	require.NoError(t, hc.UpdatePluginSettings(ctx, "map", []byte(`{"views": 3}`)))

	state, err := InitPluginSettings(ctx, hc, "map", nil, testLogger())
	require.NoError(t, err)
	assert.True(t, state.ShowSetup)
	assert.Len(t, state.Views, 1)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-1, 3))
	assert.Equal(t, 2, Clamp(5, 3))
	assert.Equal(t, 1, Clamp(1, 3))
	assert.Equal(t, 0, Clamp(1, 0))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(ViewSetting{ID: "x", Name: "Ok", MapMode: MapModeImage}))
	assert.Error(t, Validate(ViewSetting{ID: "x", Name: "Bad", MapMode: "satellite"}))
	assert.Error(t, Validate(ViewSetting{ID: "x"}))
}
