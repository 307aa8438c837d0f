package game

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages rules registration and lookup by command.
type Registry struct {
	games map[string]Rules
	mu    sync.RWMutex
}

// NewRegistry creates a new game registry.
func NewRegistry() *Registry {
	return &Registry{
		games: make(map[string]Rules),
	}
}

// Register adds rules to the registry. Registering the same command twice
// replaces the earlier rules.
func (r *Registry) Register(g Rules) error {
	if g == nil {
		return fmt.Errorf("cannot register nil rules")
	}
	if g.Command() == "" {
		return fmt.Errorf("game command cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[g.Command()] = g
	return nil
}

// Get retrieves rules by command.
func (r *Registry) Get(command string) (Rules, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[command]
	return g, ok
}

// List returns all registered rules, sorted by command for stable output.
func (r *Registry) List() []Rules {
	r.mu.RLock()
	defer r.mu.RUnlock()

	games := make([]Rules, 0, len(r.games))
	for _, g := range r.games {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Command() < games[j].Command() })
	return games
}

// Commands returns all registered game commands.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make([]string, 0, len(r.games))
	for cmd := range r.games {
		commands = append(commands, cmd)
	}
	sort.Strings(commands)
	return commands
}

// Count returns the number of registered games.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}
