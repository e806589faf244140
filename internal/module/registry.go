package module

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Conveyor/internal/bus"
)

// Factory создаёт экземпляр модуля. Используется для
// перезагружаемых (пользовательских) модулей: Reload вызывает
// фабрику заново и перепроверяет контракт.
type Factory func() (Module, error)

// Registry — реестр модулей, реализует Loader.
//
// Встроенные модули регистрируются готовыми экземплярами через
// Register. Пользовательские — фабриками через RegisterFactory;
// свежесть реализации обеспечивает явный Reload, а не неявный
// динамический импорт. Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	modules   map[string]Module
	factories map[string]Factory
	bus       *bus.Bus
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		modules:   make(map[string]Module),
		factories: make(map[string]Factory),
	}
}

// SetBus подключает шину событий. Каждое изменение состава реестра
// (Register, успешный Reload, Unregister) публикует modules:changed.
// Без шины реестр работает молча.
func (r *Registry) SetBus(b *bus.Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = b
}

// Register регистрирует готовый экземпляр модуля.
// Модуль с тем же именем перезаписывается.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	r.modules[m.Name()] = m
	r.mu.Unlock()

	r.notify()
}

// RegisterFactory регистрирует фабрику перезагружаемого модуля
// и сразу выполняет первую загрузку.
func (r *Registry) RegisterFactory(name string, factory Factory) error {
	r.mu.Lock()
	r.factories[name] = factory
	r.mu.Unlock()

	return r.Reload(name)
}

// Reload пересоздаёт модуль через его фабрику и перепроверяет
// контракт. Для модулей без фабрики (встроенных) — ошибка.
func (r *Registry) Reload(name string) error {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s has no factory", ErrModuleNotFound, name)
	}

	m, err := factory()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrModuleLoad, name, err)
	}
	if m == nil {
		return fmt.Errorf("%w: %s: factory returned nil", ErrModuleLoad, name)
	}
	if m.Name() != name {
		return fmt.Errorf("%w: %s: factory returned module %q", ErrModuleLoad, name, m.Name())
	}

	r.mu.Lock()
	r.modules[name] = m
	r.mu.Unlock()

	r.notify()
	return nil
}

// Load возвращает модуль по имени.
func (r *Registry) Load(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.modules[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return m, nil
}

// Has проверяет, зарегистрирован ли модуль.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.modules[name]
	return exists
}

// Names возвращает отсортированный список имён модулей.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister удаляет модуль и его фабрику из реестра.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.modules, name)
	delete(r.factories, name)
	r.mu.Unlock()

	r.notify()
}

// notify публикует modules:changed, если шина подключена.
func (r *Registry) notify() {
	r.mu.RLock()
	b := r.bus
	r.mu.RUnlock()

	if b != nil {
		b.Publish(bus.Event{Kind: bus.KindModulesChanged})
	}
}
