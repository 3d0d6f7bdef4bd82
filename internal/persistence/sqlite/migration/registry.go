package migration

import (
	"fmt"
	"log/slog"
	"sort"
)

// Registry holds the migrations compiled into the binary.
type Registry struct {
	defs   []Migration
	logger *slog.Logger
}

// NewRegistry creates a registry over defs. The slice is copied; callers may
// pass entries in any order.
func NewRegistry(defs []Migration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	copied := make([]Migration, len(defs))
	copy(copied, defs)
	return &Registry{defs: copied, logger: logger}
}

// List returns the valid migrations sorted ascending by version. Entries with a
// non-positive version or without an up body are skipped with a warning. Two
// entries sharing a version fail the call.
func (r *Registry) List() ([]Migration, error) {
	valid := make([]Migration, 0, len(r.defs))
	seen := make(map[int]string, len(r.defs))
	for _, m := range r.defs {
		if m.Version <= 0 || !m.HasUp() {
			r.logger.Warn("skipping invalid migration",
				slog.Int("version", m.Version),
				slog.String("name", m.Name),
				slog.Bool("has_up", m.HasUp()),
			)
			continue
		}
		if prev, ok := seen[m.Version]; ok {
			return nil, NewMigrationError(m.Version, m.Name, "list",
				fmt.Errorf("%w: already registered as %q", ErrDuplicateVersion, prev))
		}
		seen[m.Version] = m.Name
		valid = append(valid, m)
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Version < valid[j].Version })
	return valid, nil
}

// Latest returns the highest valid version, or 0 for an empty registry.
func (r *Registry) Latest() (int, error) {
	list, err := r.List()
	if err != nil {
		return 0, err
	}
	if len(list) == 0 {
		return 0, nil
	}
	return list[len(list)-1].Version, nil
}
