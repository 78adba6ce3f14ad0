package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/phylomc/internal/metrics"
)

// Loader reads an analysis file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *Analysis
	onChange []func(*Analysis)
	watcher  *fsnotify.Watcher
}

// NewLoader creates a Loader and performs the initial load. Every config it
// hands out has passed Validate.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Path returns the file the loader reads.
func (l *Loader) Path() string { return l.path }

// Config returns the current (latest) configuration.
func (l *Loader) Config() *Analysis {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*Analysis)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file changes.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						// keep running with the previous config
						slog.Warn("config reload failed", "path", l.path, "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "path", l.path, "err", err)
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the config file. A file that fails to
// parse or validate leaves the current config in place.
func (l *Loader) Reload() (*Analysis, error) {
	cfg, err := l.load()
	if err != nil {
		metrics.ConfigReloads.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ConfigReloads.WithLabelValues("success").Inc()
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Analysis), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*Analysis, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", l.path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", l.path, err)
	}
	return cfg, nil
}

// Parse decodes an analysis document and applies defaults. It does not
// validate; call Validate on the result.
func Parse(data []byte) (*Analysis, error) {
	var cfg Analysis
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Analysis) {
	r := &cfg.Run
	if r.Generations == 0 {
		r.Generations = 10000
	}
	if r.TuneInterval == 0 {
		r.TuneInterval = 100
	}
	if r.PrintEvery == 0 {
		r.PrintEvery = 1000
	}
	if r.SampleEvery == 0 {
		r.SampleEvery = 100
	}
	if r.LikelihoodHeat == nil {
		one := 1.0
		r.LikelihoodHeat = &one
	}
	if r.PosteriorHeat == nil {
		one := 1.0
		r.PosteriorHeat = &one
	}
	if r.Replicates == 0 {
		r.Replicates = 1
	}
	if r.Workers == 0 {
		r.Workers = r.Replicates
	}
	if cfg.Data.Alphabet == "" {
		cfg.Data.Alphabet = "DNA"
	}
	if cfg.Tree.BranchLengthRate == 0 {
		cfg.Tree.BranchLengthRate = 10
	}
	if cfg.Model.Substitution == "" {
		cfg.Model.Substitution = "jc"
	}
	if cfg.Model.Scaling == nil {
		on := true
		cfg.Model.Scaling = &on
	}
	if cfg.Model.GammaCategories > 1 && cfg.Model.Alpha == nil {
		cfg.Model.Alpha = &ParameterConf{Value: 1, Prior: &PriorConf{Type: "exponential", Rate: 1}}
	}
	for i := range cfg.Moves {
		m := &cfg.Moves[i]
		if m.Weight == 0 {
			m.Weight = 1
		}
	}
}
