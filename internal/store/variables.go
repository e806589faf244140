package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/shaiso/Conveyor/internal/bus"
	"github.com/shaiso/Conveyor/internal/runctx"
	"gopkg.in/yaml.v3"
)

// variablesDoc — формат variables.yaml.
type variablesDoc struct {
	// Global — глобальные переменные, видимые каждому запуску.
	Global map[string]string `yaml:"global"`

	// Environments — именованные наборы переменных.
	// Набор выбирается полем env пайплайна и переопределяет
	// глобальные.
	Environments map[string]map[string]string `yaml:"environments"`
}

// Variables — переменные окружения запусков из variables.yaml.
//
// Реализует runctx.VariableSource. Отсутствующий файл — не ошибка:
// источник пуст.
type Variables struct {
	path   string
	bus    *bus.Bus
	logger *slog.Logger

	mu  sync.RWMutex
	doc variablesDoc
}

// NewVariables создаёт источник переменных и выполняет первую
// загрузку.
func NewVariables(dir string, b *bus.Bus, logger *slog.Logger) (*Variables, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Variables{
		path:   filepath.Join(dir, variablesFile),
		bus:    b,
		logger: logger,
	}
	if err := v.Reload(); err != nil {
		return nil, err
	}
	return v, nil
}

// Reload перечитывает variables.yaml.
// После успешной замены публикуется variables:changed.
func (v *Variables) Reload() error {
	data, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			v.mu.Lock()
			v.doc = variablesDoc{}
			v.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read variables: %w", err)
	}

	var doc variablesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse variables: %w", err)
	}

	v.mu.Lock()
	v.doc = doc
	v.mu.Unlock()

	v.logger.Info("variables loaded",
		"global", len(doc.Global),
		"environments", len(doc.Environments),
	)
	if v.bus != nil {
		v.bus.Publish(bus.Event{Kind: bus.KindVariablesChanged})
	}
	return nil
}

// GlobalVariables возвращает копию глобальных переменных.
func (v *Variables) GlobalVariables() map[string]string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[string]string, len(v.doc.Global))
	for k, val := range v.doc.Global {
		out[k] = val
	}
	return out
}

// EnvironmentVariables возвращает копию именованного набора.
func (v *Variables) EnvironmentVariables(name string) (map[string]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	set, ok := v.doc.Environments[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", runctx.ErrUnknownEnvSet, name)
	}

	out := make(map[string]string, len(set))
	for k, val := range set {
		out[k] = val
	}
	return out, nil
}
