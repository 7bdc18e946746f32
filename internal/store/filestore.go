package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/openappstack/installd/internal/logging"
	"github.com/openappstack/installd/internal/manifest"
	"github.com/openappstack/installd/internal/types"
)

const recordExt = ".json"

// FileStore keeps one JSON record per installed application under
// <root>/apps and mirrors them in memory. Records are loaded once at Open;
// afterwards the in-memory map is authoritative and every mutation is
// written through.
type FileStore struct {
	root   string
	logger *logging.Logger

	mu        sync.RWMutex
	apps      map[string]*types.ApplicationData
	observers []Observer
}

// Open loads the store rooted at dir, creating directories as needed.
// Records that fail to parse are skipped with a warning rather than failing
// startup.
func Open(dir string, logger *logging.Logger) (*FileStore, error) {
	s := &FileStore{
		root:   dir,
		logger: logger,
		apps:   make(map[string]*types.ApplicationData),
	}

	appsDir := s.appsDir()
	if err := os.MkdirAll(appsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, appsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			logger.Warn("skipping unreadable store entry", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, recordExt) {
			return nil
		}
		app, rerr := readRecord(path)
		if rerr != nil {
			logger.Warn("skipping invalid application record", zap.String("path", path), zap.Error(rerr))
			return nil
		}
		s.apps[app.ID] = app
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning store directory: %w", err)
	}

	logger.Info("application store opened",
		zap.String("dir", dir), zap.Int("installed", len(s.apps)))
	return s, nil
}

// GetByID implements Store.
func (s *FileStore) GetByID(id string) (*types.ApplicationData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, false
	}
	return app.Clone(), true
}

// GetAllInstalled implements Store. The result is sorted by identity so
// startup enumeration is deterministic.
func (s *FileStore) GetAllInstalled() []*types.ApplicationData {
	s.mu.RLock()
	apps := make([]*types.ApplicationData, 0, len(s.apps))
	for _, app := range s.apps {
		apps = append(apps, app.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(apps, func(i, j int) bool { return apps[i].ID < apps[j].ID })
	return apps
}

// Install implements Store. The record is persisted and cached before
// observers run, so callbacks observe the post-install state.
func (s *FileStore) Install(pkgPath string) (string, error) {
	m, err := manifest.Open(pkgPath)
	if err != nil {
		return "", err
	}

	app := &types.ApplicationData{
		ID:          m.ID,
		Name:        m.Name,
		Version:     m.Version,
		Description: m.Description,
		Properties:  m.Properties,
		InstalledAt: time.Now().UTC(),
	}

	s.mu.Lock()
	if _, exists := s.apps[app.ID]; exists {
		s.mu.Unlock()
		return "", fmt.Errorf("application %s is already installed", app.ID)
	}
	if err := s.writeRecord(app); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.apps[app.ID] = app
	s.mu.Unlock()

	s.logger.Info("application installed",
		zap.String("id", app.ID), zap.String("version", app.Version))
	s.notify(func(o Observer) { o.OnApplicationInstalled(app.ID) })
	return app.ID, nil
}

// Uninstall implements Store.
func (s *FileStore) Uninstall(id string) error {
	s.mu.Lock()
	if _, exists := s.apps[id]; !exists {
		s.mu.Unlock()
		return fmt.Errorf("application %s is not installed", id)
	}
	if err := os.Remove(s.recordPath(id)); err != nil && !os.IsNotExist(err) {
		s.mu.Unlock()
		return fmt.Errorf("removing record for %s: %w", id, err)
	}
	delete(s.apps, id)
	s.mu.Unlock()

	s.logger.Info("application uninstalled", zap.String("id", id))
	s.notify(func(o Observer) { o.OnApplicationUninstalled(id) })
	return nil
}

// AddObserver implements Store.
func (s *FileStore) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// RemoveObserver implements Store.
func (s *FileStore) RemoveObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// notify runs fn for each observer outside the store lock, so callbacks may
// call back into the store.
func (s *FileStore) notify(fn func(Observer)) {
	s.mu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, o := range observers {
		fn(o)
	}
}

func (s *FileStore) appsDir() string {
	return filepath.Join(s.root, "apps")
}

func (s *FileStore) recordPath(id string) string {
	return filepath.Join(s.appsDir(), id+recordExt)
}

func (s *FileStore) writeRecord(app *types.ApplicationData) error {
	data, err := json.MarshalIndent(app, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling record for %s: %w", app.ID, err)
	}
	if err := os.WriteFile(s.recordPath(app.ID), data, 0o644); err != nil {
		return fmt.Errorf("writing record for %s: %w", app.ID, err)
	}
	return nil
}

func readRecord(path string) (*types.ApplicationData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var app types.ApplicationData
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, err
	}
	// Records are hand-editable files; hold them to the same identity
	// grammar the install path enforces, or a doctored id could escape
	// the apps directory when its record path is rebuilt for removal.
	if !manifest.ValidID(app.ID) {
		return nil, fmt.Errorf("record %s has invalid id %q", path, app.ID)
	}
	return &app, nil
}
