package host

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Duck is a Context whose dataset and plugin settings live in DuckDB. The
// datasets table holds the document without rows; rows live one per record
// in table_rows. Reads are served from the in-memory snapshot refreshed by
// Sync.
type Duck struct {
	*Memory
	db *sql.DB
	id string
}

// NewDuck creates a DuckDB-backed host for one dataset and loads it.
func NewDuck(ctx context.Context, conn *sql.DB, datasetID string, bus *Bus) (*Duck, error) {
	d := &Duck{
		Memory: NewMemory(&Dataset{ID: datasetID}, bus),
		db:     conn,
		id:     datasetID,
	}
	if err := d.Sync(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Sync reloads the dataset document, its rows and the plugin settings from
// the database.
func (d *Duck) Sync(ctx context.Context) error {
	ds := &Dataset{ID: d.id}

	var doc string
	err := d.db.QueryRowContext(ctx, "SELECT doc FROM datasets WHERE id = ?", d.id).Scan(&doc)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("load dataset %s: %w", d.id, err)
	default:
		if err := json.Unmarshal([]byte(doc), ds); err != nil {
			return fmt.Errorf("decode dataset %s: %w", d.id, err)
		}
		ds.ID = d.id
	}
	if err := d.loadRows(ctx, ds); err != nil {
		return err
	}

	rows, err := d.db.QueryContext(ctx, "SELECT plugin, settings FROM plugin_settings WHERE dataset_id = ?", d.id)
	if err != nil {
		return fmt.Errorf("load plugin settings: %w", err)
	}
	defer rows.Close()

	ds.Plugins = make(map[string]json.RawMessage)
	for rows.Next() {
		var plugin, settings string
		if err := rows.Scan(&plugin, &settings); err != nil {
			return fmt.Errorf("scan plugin settings: %w", err)
		}
		ds.Plugins[plugin] = json.RawMessage(settings)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	d.Memory.SetDataset(ds)
	return nil
}

func (d *Duck) loadRows(ctx context.Context, ds *Dataset) error {
	byName := make(map[string]*Table, len(ds.Tables))
	for _, t := range ds.Tables {
		t.Rows = nil
		byName[t.Name] = t
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT table_name, row_id, cells FROM table_rows WHERE dataset_id = ? ORDER BY table_name, position", d.id)
	if err != nil {
		return fmt.Errorf("load rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, id string
		var cells sql.NullString
		if err := rows.Scan(&table, &id, &cells); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		t := byName[table]
		if t == nil {
			continue
		}
		r := &Row{ID: id, Cells: map[string]any{}}
		if cells.Valid && cells.String != "" {
			if err := json.Unmarshal([]byte(cells.String), &r.Cells); err != nil {
				return fmt.Errorf("decode row %s: %w", id, err)
			}
		}
		t.Rows = append(t.Rows, r)
	}
	return rows.Err()
}

// Save persists a new dataset document and its rows, then publishes it.
func (d *Duck) Save(ctx context.Context, ds *Dataset) error {
	ds.ID = d.id
	stored := *ds
	stored.Plugins = nil
	stored.Tables = make([]*Table, len(ds.Tables))
	for i, t := range ds.Tables {
		shell := *t
		shell.Rows = nil
		stored.Tables[i] = &shell
	}
	doc, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO datasets (id, doc) VALUES (?, ?)", d.id, string(doc)); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM table_rows WHERE dataset_id = ?", d.id); err != nil {
		return fmt.Errorf("clear rows: %w", err)
	}
	for _, t := range ds.Tables {
		for i, r := range t.Rows {
			cells, err := json.Marshal(r.Cells)
			if err != nil {
				return fmt.Errorf("encode row %s: %w", r.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO table_rows (dataset_id, table_name, row_id, position, cells) VALUES (?, ?, ?, ?, ?)",
				d.id, t.Name, r.ID, i, string(cells)); err != nil {
				return fmt.Errorf("save row %s: %w", r.ID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	d.Memory.SetDataset(ds)
	return nil
}

// UpdatePluginSettings writes the settings blob through to the database.
func (d *Duck) UpdatePluginSettings(ctx context.Context, plugin string, settings []byte) error {
	if !json.Valid(settings) {
		return fmt.Errorf("plugin %q settings: invalid json", plugin)
	}
	if _, err := d.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO plugin_settings (dataset_id, plugin, settings) VALUES (?, ?, ?)",
		d.id, plugin, string(settings)); err != nil {
		return fmt.Errorf("save plugin settings: %w", err)
	}
	return d.Memory.UpdatePluginSettings(ctx, plugin, settings)
}
