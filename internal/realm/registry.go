package realm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry — явный реестр миров (id → Realm).
// Заменяет неявный глобальный «активный мир»: каждый потребитель
// получает ссылку на конкретный Realm и работает только с ним.
type Registry struct {
	mu     sync.RWMutex
	realms map[string]*Realm
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{realms: make(map[string]*Realm)}
}

// Register добавляет мир в реестр
func (reg *Registry) Register(r *Realm) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.realms[r.ID()]; exists {
		return fmt.Errorf("мир %s уже зарегистрирован", r.ID())
	}
	reg.realms[r.ID()] = r
	return nil
}

// Get возвращает мир по id (nil — нет такого)
func (reg *Registry) Get(id string) *Realm {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.realms[id]
}

// Remove удаляет мир из реестра
func (reg *Registry) Remove(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.realms, id)
}

// IDs возвращает отсортированные id зарегистрированных миров
func (reg *Registry) IDs() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]string, 0, len(reg.realms))
	for id := range reg.realms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RunAll запускает циклы тика всех миров и ждёт их завершения
func (reg *Registry) RunAll(ctx context.Context) {
	reg.mu.RLock()
	realms := make([]*Realm, 0, len(reg.realms))
	for _, r := range reg.realms {
		realms = append(realms, r)
	}
	reg.mu.RUnlock()

	var wg sync.WaitGroup
	for _, r := range realms {
		wg.Add(1)
		go func(r *Realm) {
			defer wg.Done()
			r.Run(ctx)
		}(r)
	}
	wg.Wait()
}
