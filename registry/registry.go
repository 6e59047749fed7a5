package registry

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Registry is the Model Registry singleton. Reads and the current-model
// pointer are protected by a RWMutex so set_current is atomic with
// respect to concurrent list/get calls, per spec.md §4.1.
type Registry struct {
	mu      sync.RWMutex
	models  map[string]Model
	current string

	db *sql.DB
}

// New opens (or creates) the SQLite-backed custom-model catalog under
// dataDir, seeds the built-in defaults, and loads any previously
// persisted custom entries on top.
func New(dataDir string) (*Registry, error) {
	dbPath := filepath.Join(dataDir, "models.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open model registry db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping model registry db: %w", err)
	}

	r := &Registry{models: map[string]Model{}, db: db}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	for _, m := range defaultCatalog() {
		r.models[m.ID] = m
		if m.Default {
			r.current = m.ID
		}
	}
	if err := r.loadCustom(); err != nil {
		return nil, err
	}
	if r.current == "" {
		for id := range r.models {
			r.current = id
			break
		}
	}
	return r, nil
}

func (r *Registry) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS custom_models (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		display_name TEXT NOT NULL,
		capabilities TEXT NOT NULL,
		input_price_per_million REAL NOT NULL,
		output_price_per_million REAL NOT NULL,
		api_base_url TEXT,
		is_stream INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);
	`
	_, err := r.db.Exec(schema)
	return err
}

func (r *Registry) loadCustom() error {
	rows, err := r.db.Query(`SELECT id, provider, display_name, capabilities, input_price_per_million, output_price_per_million, api_base_url, is_stream FROM custom_models`)
	if err != nil {
		return fmt.Errorf("load custom models: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Model
		var capsCSV string
		var isStream int
		if err := rows.Scan(&m.ID, &m.Provider, &m.DisplayName, &capsCSV, &m.InputPricePerMillion, &m.OutputPricePerMillion, &m.APIBaseURL, &isStream); err != nil {
			return fmt.Errorf("scan custom model: %w", err)
		}
		m.IsStream = isStream != 0
		m.Capabilities = parseCapabilities(capsCSV)
		r.models[m.ID] = m
	}
	return rows.Err()
}

// RegisterCustom validates and persists a custom OpenAI-compatible model
// entry (spec.md §6 custom_llm_providers.available_models), then adds it
// to the in-memory catalog. provider must already be a known Provider
// Adapter constructor name, or this call reports a ConfigError via the
// caller's validation step — the registry itself only checks non-empty.
func (r *Registry) RegisterCustom(m Model) error {
	if m.ID == "" || m.Provider == "" {
		return fmt.Errorf("custom model requires id and provider")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO custom_models (id, provider, display_name, capabilities, input_price_per_million, output_price_per_million, api_base_url, is_stream, created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Provider, m.DisplayName, capabilitiesCSV(m.Capabilities), m.InputPricePerMillion, m.OutputPricePerMillion, m.APIBaseURL, boolToInt(m.IsStream), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("persist custom model: %w", err)
	}
	r.models[m.ID] = m
	return nil
}

// List returns every catalog entry, builtin and custom.
func (r *Registry) List() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	return out
}

// ListByProvider filters List to a single provider name.
func (r *Registry) ListByProvider(provider string) []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Model
	for _, m := range r.models {
		if m.Provider == provider {
			out = append(out, m)
		}
	}
	return out
}

// Get looks up a single model by id.
func (r *Registry) Get(id string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	return m, ok
}

// SetCurrent atomically swaps the current-model pointer. It returns an
// error if id is not in the catalog, leaving the previous current model
// in place.
func (r *Registry) SetCurrent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[id]; !ok {
		return fmt.Errorf("unknown model %q", id)
	}
	r.current = id
	return nil
}

// GetCurrent returns the currently selected model.
func (r *Registry) GetCurrent() (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[r.current]
	return m, ok
}

func (r *Registry) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func capabilitiesCSV(caps map[Capability]bool) string {
	out := ""
	for c, on := range caps {
		if !on {
			continue
		}
		if out != "" {
			out += ","
		}
		out += string(c)
	}
	return out
}

func parseCapabilities(csv string) map[Capability]bool {
	out := map[Capability]bool{}
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out[Capability(csv[start:i])] = true
			}
			start = i + 1
		}
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
