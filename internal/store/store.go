// Package store — файловое хранилище определений.
//
// Пайплайны лежат в директории как YAML-файлы (один пайплайн на
// файл), переменные — в variables.yaml. Определения проверяются
// JSON-схемой до строгого декодирования; Reload перечитывает
// директорию целиком и публикует pipelines:changed.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shaiso/Conveyor/internal/bus"
	"github.com/shaiso/Conveyor/internal/domain"
	"gopkg.in/yaml.v3"
)

// variablesFile — имя файла переменных внутри директории определений.
// Не является определением пайплайна и пропускается при загрузке.
const variablesFile = "variables.yaml"

// DirStore — хранилище определений пайплайнов в директории.
//
// Реализует orchestrator.PipelineSource. Снимок определений держится
// в памяти; Reload атомарно заменяет его. Пауза расписания хранится
// как оверлей поверх файлов и переживает Reload.
type DirStore struct {
	dir    string
	schema *jsonschema.Schema
	bus    *bus.Bus
	logger *slog.Logger

	mu        sync.RWMutex
	pipelines map[string]*domain.Pipeline
	order     []string
	paused    map[string]bool
}

// Config — конфигурация DirStore.
type Config struct {
	// Dir — директория с YAML-определениями.
	Dir string

	// Bus — шина событий. Может быть nil.
	Bus *bus.Bus

	// Logger — логгер. По умолчанию slog.Default().
	Logger *slog.Logger
}

// New создаёт DirStore и выполняет первую загрузку.
func New(cfg Config) (*DirStore, error) {
	schema, err := compilePipelineSchema()
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &DirStore{
		dir:    cfg.Dir,
		schema: schema,
		bus:    cfg.Bus,
		logger: logger,
		paused: make(map[string]bool),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload перечитывает директорию определений.
//
// Ошибка в любом файле отменяет перезагрузку целиком — действующий
// снимок остаётся прежним. После успешной замены публикуется
// pipelines:changed.
func (s *DirStore) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read definitions dir: %w", err)
	}

	pipelines := make(map[string]*domain.Pipeline)
	var order []string

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == variablesFile {
			continue
		}
		if ext := filepath.Ext(name); ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(s.dir, name)
		p, err := s.loadFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if _, exists := pipelines[p.ID]; exists {
			return fmt.Errorf("%s: %w: %s", name, ErrDuplicatePipelineID, p.ID)
		}
		pipelines[p.ID] = p
		order = append(order, p.ID)
	}

	s.mu.Lock()
	s.pipelines = pipelines
	s.order = order
	s.mu.Unlock()

	s.logger.Info("pipeline definitions loaded", "count", len(order), "dir", s.dir)

	if s.bus != nil {
		s.bus.Publish(bus.Event{Kind: bus.KindPipelinesChanged})
	}
	return nil
}

// loadFile читает, валидирует и декодирует одно определение.
func (s *DirStore) loadFile(path string) (*domain.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	// Общий разбор для проверки схемой: YAML -> JSON-совместимое
	// значение, как его видит валидатор.
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	jsonData, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("normalize definition: %w", err)
	}
	if err := json.Unmarshal(jsonData, &generic); err != nil {
		return nil, fmt.Errorf("normalize definition: %w", err)
	}
	if err := s.schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	var p domain.Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	return &p, nil
}

// ListPipelines возвращает все пайплайны в порядке имён файлов.
func (s *DirStore) ListPipelines(_ context.Context) ([]domain.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Pipeline, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.withOverlay(s.pipelines[id]))
	}
	return out, nil
}

// LoadPipeline возвращает пайплайн по ID. nil, nil — не существует.
func (s *DirStore) LoadPipeline(_ context.Context, id string) (*domain.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pipelines[id]
	if !ok {
		return nil, nil
	}
	return s.withOverlay(p), nil
}

// PauseSchedule приостанавливает расписание пайплайна.
func (s *DirStore) PauseSchedule(id string) error {
	return s.setPaused(id, true)
}

// ResumeSchedule возобновляет расписание пайплайна.
func (s *DirStore) ResumeSchedule(id string) error {
	return s.setPaused(id, false)
}

func (s *DirStore) setPaused(id string, paused bool) error {
	s.mu.Lock()
	_, ok := s.pipelines[id]
	if ok {
		s.paused[id] = paused
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrPipelineNotFound, id)
	}

	s.logger.Info("schedule pause changed", "pipeline_id", id, "paused", paused)
	if s.bus != nil {
		s.bus.Publish(bus.Event{Kind: bus.KindPipelinesChanged, PipelineID: id})
	}
	return nil
}

// withOverlay возвращает копию пайплайна с применённым оверлеем
// паузы. Вызывается под s.mu.
func (s *DirStore) withOverlay(p *domain.Pipeline) *domain.Pipeline {
	out := *p
	if paused, ok := s.paused[p.ID]; ok {
		out.SchedulePaused = paused
	}
	return &out
}
