package host

// Column keys of the sample "Trips" table.
const (
	SampleName     = "0000"
	SampleLocation = "loc1"
	SampleAddress  = "addr"
	SampleCountry  = "ctry"
	SampleCategory = "cat1"
	SamplePhotos   = "img1"
	SampleDate     = "dat1"
	SampleOwner    = "own1"
	SampleNotes    = "note"
)

// Option ids of the sample category column.
const (
	SampleOptAsia   = "opt-asia"
	SampleOptEurope = "opt-europe"
)

// SampleDataset returns a small dataset with one table covering every geo
// format. It backs the seed command and tests.
func SampleDataset() *Dataset {
	category := &Column{Key: SampleCategory, Name: "Region", Type: ColumnSingleSelect, Data: ColumnData{
		Options: []SelectOption{
			{ID: SampleOptAsia, Name: "Asia", Color: "#FF8000", TextColor: "#FFFFFF"},
			{ID: SampleOptEurope, Name: "Europe", Color: "#2A66F0", TextColor: "#FFFFFF"},
		},
	}}

	trips := &Table{
		ID:   "tbl-trips",
		Name: "Trips",
		Columns: []*Column{
			{Key: SampleName, Name: "Name", Type: ColumnText},
			{Key: SampleLocation, Name: "Location", Type: ColumnGeolocation, Data: ColumnData{GeoFormat: GeoFormatLatLng}},
			{Key: SampleAddress, Name: "Address", Type: ColumnGeolocation, Data: ColumnData{GeoFormat: GeoFormatAddress}},
			{Key: SampleCountry, Name: "Country", Type: ColumnGeolocation, Data: ColumnData{GeoFormat: GeoFormatCountryRegion}},
			category,
			{Key: SamplePhotos, Name: "Photos", Type: ColumnImage},
			{Key: SampleDate, Name: "Date", Type: ColumnDate, Data: ColumnData{Format: "YYYY-MM-DD"}},
			{Key: SampleOwner, Name: "Owner", Type: ColumnCollaborator},
			{Key: SampleNotes, Name: "Notes", Type: ColumnLongText},
		},
		Rows: []*Row{
			{ID: "row-tokyo", Cells: map[string]any{
				SampleName:     "Tokyo",
				SampleLocation: map[string]any{"lat": 35.6895, "lng": 139.6917},
				SampleAddress:  map[string]any{"province": "Tokyo", "city": "Shinjuku", "detail": "Nishi-Shinjuku 2-8-1"},
				SampleCountry:  map[string]any{"country_region": "Japan"},
				SampleCategory: SampleOptAsia,
				SamplePhotos:   []any{"https://img.example.com/tokyo-1.jpg", "https://img.example.com/tokyo-2.jpg"},
				SampleDate:     "2024-04-01",
				SampleOwner:    []any{"ana@example.com"},
			}},
			{ID: "row-kyoto", Cells: map[string]any{
				SampleName:     "Kyoto",
				SampleLocation: map[string]any{"lat": "35.0116", "lng": "135.7681"},
				SampleAddress:  "Kyoto Station, Kyoto",
				SampleCountry:  map[string]any{"country_region": "Japan"},
				SampleCategory: SampleOptAsia,
				SampleDate:     "2024-04-05",
				SampleOwner:    []any{"ben@example.com"},
			}},
			{ID: "row-shinjuku", Cells: map[string]any{
				SampleName:     "Shinjuku Gyoen",
				SampleLocation: map[string]any{"lat": 35.6895, "lng": 139.6917},
				SampleCountry:  map[string]any{"country_region": "Japan"},
				SampleCategory: SampleOptAsia,
				SamplePhotos:   []any{"https://img.example.com/gyoen.jpg"},
			}},
			{ID: "row-paris", Cells: map[string]any{
				SampleName:     "Paris",
				SampleLocation: map[string]any{"lat": 48.8566, "lng": 2.3522},
				SampleAddress:  "Champ de Mars, Paris",
				SampleCountry:  map[string]any{"country_region": "France"},
				SampleCategory: SampleOptEurope,
				SampleNotes:    "Bring an umbrella",
			}},
			{ID: "row-blank", Cells: map[string]any{
				SampleName: "Someday",
			}},
		},
		Views: []*View{
			{ID: "view-all", Name: "All", Type: ViewTypeTable, ColorBy: SampleCategory},
			{ID: "view-asia", Name: "Asia", Type: ViewTypeTable, Filters: []Filter{
				{ColumnKey: SampleCategory, Predicate: PredicateIs, Term: SampleOptAsia},
			}},
			{ID: "view-archive", Name: "Archived", Type: ViewTypeArchive},
		},
	}

	contacts := &Table{
		ID:   "tbl-contacts",
		Name: "Contacts",
		Columns: []*Column{
			{Key: SampleName, Name: "Name", Type: ColumnText},
			{Key: "mail", Name: "Email", Type: ColumnEmail},
		},
		Rows: []*Row{
			{ID: "row-ana", Cells: map[string]any{SampleName: "Ana", "mail": "ana@example.com"}},
		},
		Views: []*View{{ID: "view-contacts", Name: "Default", Type: ViewTypeTable}},
	}

	return &Dataset{
		ID:     "sample",
		Tables: []*Table{trips, contacts},
		Collaborators: []Collaborator{
			{Email: "ana@example.com", Name: "Ana"},
			{Email: "ben@example.com", Name: "Ben"},
		},
		ActiveTable: "Trips",
		ActiveView:  "All",
	}
}
