package channel

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Registry maps channel names to their repositories under one storage
// root. Each immediate subdirectory of the root is one channel.
type Registry struct {
	root string
	opts Options
	log  zerolog.Logger

	mu    sync.RWMutex
	repos map[string]*Repository
}

// OpenRegistry creates root if needed and opens every channel under it.
// Directories that do not hold a usable repository are logged and skipped.
func OpenRegistry(root string, opts Options) (*Registry, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan storage root: %w", err)
	}

	reg := &Registry{
		root:  root,
		opts:  opts,
		log:   opts.Logger.With().Str("component", "registry").Logger(),
		repos: make(map[string]*Repository),
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		repo, err := Open(filepath.Join(root, name), opts)
		if err != nil {
			reg.log.Warn().Err(err).Str("channel", name).Msg("skipping channel directory")
			continue
		}
		reg.repos[name] = repo
	}
	reg.opts.recorder().SetChannels(len(reg.repos))
	reg.log.Info().Str("root", root).Int("channels", len(reg.repos)).Msg("registry opened")
	return reg, nil
}

// Root returns the storage root.
func (reg *Registry) Root() string { return reg.root }

// ValidateName rejects names that cannot be used as a channel directory.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidChannelName, name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q is hidden", ErrInvalidChannelName, name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains a separator", ErrInvalidChannelName, name)
	}
	return nil
}

// ChannelExists reports whether name is registered.
func (reg *Registry) ChannelExists(name string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	_, ok := reg.repos[name]
	return ok
}

// Channel returns the repository registered under name.
func (reg *Registry) Channel(name string) (*Repository, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	repo, ok := reg.repos[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	return repo, nil
}

// Channels returns the registered channel names, sorted.
func (reg *Registry) Channels() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	names := make([]string, 0, len(reg.repos))
	for name := range reg.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateChannel creates and registers an empty channel.
func (reg *Registry) CreateChannel(name string) (*Repository, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.repos[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelAlreadyExists, name)
	}
	repo, err := Create(filepath.Join(reg.root, name), reg.opts)
	if err != nil {
		return nil, err
	}
	reg.repos[name] = repo
	reg.opts.recorder().SetChannels(len(reg.repos))
	return repo, nil
}

// RemoveChannel deletes a channel's storage and unregisters it.
func (reg *Registry) RemoveChannel(name string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	repo, ok := reg.repos[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	return reg.remove(name, repo)
}

// RemoveRepository deletes repo's storage and unregisters it. repo must be
// the instance the registry handed out.
func (reg *Registry) RemoveRepository(repo *Repository) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if repo == nil || reg.repos[repo.Name()] != repo {
		return fmt.Errorf("%w: repository is not registered", ErrChannelNotFound)
	}
	return reg.remove(repo.Name(), repo)
}

// remove unregisters name only once its storage is gone, so a failed
// removal leaves the channel registered and the call can be retried.
func (reg *Registry) remove(name string, repo *Repository) error {
	if err := repo.Remove(); err != nil {
		return err
	}
	delete(reg.repos, name)
	reg.opts.recorder().SetChannels(len(reg.repos))
	return nil
}
