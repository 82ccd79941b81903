package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/framepipe/internal/config"
)

// Preset is a named pipeline configuration.
type Preset struct {
	Name      string          `json:"name"`
	Config    config.Snapshot `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PresetRepository provides CRUD operations for presets.
type PresetRepository struct {
	db *sql.DB
}

// Presets returns the preset repository for this store.
func (s *Store) Presets() *PresetRepository {
	return &PresetRepository{db: s.db}
}

// Save stores snap under name, replacing an existing preset of that name.
func (r *PresetRepository) Save(name string, snap config.Snapshot) error {
	if name == "" {
		return errors.New("preset name is empty")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode preset %q: %w", name, err)
	}

	now := time.Now()
	_, err = r.db.Exec(
		`INSERT INTO presets (name, config, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`,
		name, string(data), now, now,
	)
	return err
}

// Get retrieves a preset by name.
func (r *PresetRepository) Get(name string) (*Preset, error) {
	p := &Preset{}
	var data string

	err := r.db.QueryRow(
		`SELECT name, config, created_at, updated_at FROM presets WHERE name = ?`,
		name,
	).Scan(&p.Name, &data, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(data), &p.Config); err != nil {
		return nil, fmt.Errorf("decode preset %q: %w", name, err)
	}
	return p, nil
}

// List returns every preset ordered by name.
func (r *PresetRepository) List() ([]*Preset, error) {
	rows, err := r.db.Query(`SELECT name, config, created_at, updated_at FROM presets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presets []*Preset
	for rows.Next() {
		p := &Preset{}
		var data string
		if err := rows.Scan(&p.Name, &data, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &p.Config); err != nil {
			return nil, fmt.Errorf("decode preset %q: %w", p.Name, err)
		}
		presets = append(presets, p)
	}

	return presets, rows.Err()
}

// Delete removes a preset by name.
func (r *PresetRepository) Delete(name string) error {
	result, err := r.db.Exec(`DELETE FROM presets WHERE name = ?`, name)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
