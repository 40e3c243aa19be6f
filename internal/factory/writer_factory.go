// Package factory maps writer types from the configuration to their constructors.
// Writer packages register themselves from init.
package factory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/engine/stream"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"
)

// WriterFactory opens a record writer for one topology run.
type WriterFactory func(def config.WriterDef, topology string) (model.RecordWriter, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]WriterFactory)
)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Types returns the registered writer types, sorted.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(registry))
	for name := range registry {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// CheckTypes reports enabled writers whose type was never registered.
func CheckTypes(defs []config.WriterDef) error {
	mu.RLock()
	defer mu.RUnlock()
	var errs []error
	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		if _, ok := registry[def.Type]; !ok {
			errs = append(errs, fmt.Errorf("unknown writer type: '%s'", def.Type))
		}
	}
	return errors.Join(errs...)
}

// Open creates every enabled writer for a topology run. If one of them fails,
// the writers opened so far are closed and the error is returned.
func Open(defs []config.WriterDef, topology string) ([]stream.NamedWriter, error) {
	var writers []stream.NamedWriter
	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		mu.RLock()
		factory, ok := registry[def.Type]
		mu.RUnlock()

		var (
			w   model.RecordWriter
			err error
		)
		if !ok {
			err = fmt.Errorf("unknown writer type: '%s'", def.Type)
		} else {
			w, err = factory(def, topology)
		}
		if err != nil {
			for _, opened := range writers {
				if cerr := opened.Writer.Close(); cerr != nil {
					logger.WriterLog.Warnf("Failed to close writer %s: %v", opened.Name, cerr)
				}
			}
			return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
		}

		logger.WriterLog.Debugf("Opened %s writer for topology %q", def.Type, topology)
		writers = append(writers, stream.NamedWriter{Name: def.Type, Writer: w})
	}
	return writers, nil
}
