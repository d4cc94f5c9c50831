package localstate

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

type Logger interface {
	Printf(format string, args ...any)
}

// settingsFile is the on-disk shape of the settings document.
type settingsFile struct {
	RemoteEnabled *bool `json:"remoteEnabled"`
}

// Settings exposes the externally-controlled remote-enabled flag. The
// settings file is watched so an outside toggle (another process, a user
// editing the file) is observed without polling. A missing file means
// enabled.
type Settings struct {
	path   string
	logger Logger

	mu            sync.Mutex
	remoteEnabled bool
	onChange      []func(enabled bool)

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

func OpenSettings(path string, logger Logger) (*Settings, error) {
	s := &Settings{
		path:          path,
		logger:        logger,
		remoteEnabled: true,
		done:          make(chan struct{}),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory, not the file: editors and atomic writers replace
	// the file by rename, which would silently detach a file watch
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	s.watcher = watcher
	s.wg.Add(1)
	go s.watch()
	return s, nil
}

func (s *Settings) RemoteEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteEnabled
}

// OnChange registers a callback invoked whenever the flag flips. Callbacks
// run on the watcher goroutine.
func (s *Settings) OnChange(fn func(enabled bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// SetRemoteEnabled writes the flag back to the settings file.
func (s *Settings) SetRemoteEnabled(enabled bool) error {
	data, err := json.Marshal(settingsFile{RemoteEnabled: &enabled})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.apply(enabled)
	return nil
}

func (s *Settings) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var parsed settingsFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		s.logf("settings file %s is malformed, keeping previous flags: %v", s.path, err)
		return nil
	}
	if parsed.RemoteEnabled != nil {
		s.apply(*parsed.RemoteEnabled)
	}
	return nil
}

func (s *Settings) apply(enabled bool) {
	s.mu.Lock()
	changed := s.remoteEnabled != enabled
	s.remoteEnabled = enabled
	callbacks := append(([]func(bool))(nil), s.onChange...)
	s.mu.Unlock()
	if !changed {
		return
	}
	for _, fn := range callbacks {
		fn(enabled)
	}
}

func (s *Settings) watch() {
	defer s.wg.Done()
	base := filepath.Base(s.path)
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				s.logf("reload settings: %v", err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logf("settings watcher: %v", err)
		}
	}
}

func (s *Settings) Close() error {
	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()
	return err
}

func (s *Settings) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
