package engine

import (
	"log/slog"
	"sync"

	"github.com/emberforge/audiocore/internal/logging"
)

// CommandRegistry is the process-wide, mutex-guarded table mapping
// CommandId to CommandDefinition (§4.2). Readers may be on any thread;
// callers from the realtime device-callback path are forbidden (§5).
type CommandRegistry struct {
	mu      sync.RWMutex
	entries map[CommandId]CommandDefinition
	logger  *slog.Logger
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandRegistry{
		entries: make(map[CommandId]CommandDefinition),
		logger:  logger.With("component", "command_registry"),
	}
}

// Add inserts a new command definition under NewCommandId(name). Returns an
// AuthoringError if the CRC-32 collides with a different existing name.
func (r *CommandRegistry) Add(name string, def CommandDefinition) (CommandId, error) {
	id := NewCommandId(name)
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[id]; ok && existing.Name != name {
		return InvalidCommandId, authoringError("CommandId collision between distinct names",
			"existing_name", existing.Name, "new_name", name)
	}

	def.Name = name
	r.entries[id] = def
	return id, nil
}

// Remove deletes a command definition.
func (r *CommandRegistry) Remove(id CommandId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Lookup retrieves a command definition by id.
func (r *CommandRegistry) Lookup(id CommandId) (CommandDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.entries[id]
	return def, ok
}

// Snapshot returns a stable copy of all registered definitions, safe to
// range over without holding the registry's lock.
func (r *CommandRegistry) Snapshot() []CommandDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CommandDefinition, 0, len(r.entries))
	for _, def := range r.entries {
		out = append(out, def)
	}
	return out
}

// logNotImplemented emits the required "not implemented" diagnostic for
// Switch/State/Parameter command kinds, which are accepted and dispatched
// but treated as no-ops.
func (r *CommandRegistry) logNotImplemented(kind CommandKind, name string) {
	r.logger.Warn("command kind accepted but not implemented", "kind", kind.String(), "name", name)
}
