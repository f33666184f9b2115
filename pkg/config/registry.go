package config

import (
	"fmt"
	"strings"

	"github.com/pv/sortmachine-go/internal/sorter"
)

// Catalog хранит алгоритмы профиля и обеспечивает поиск по имени без учёта регистра.
type Catalog struct {
	byName map[string]sorter.Algorithm // lower(name) → algorithm
	order  []string                    // порядок ротации, исходные имена
}

// NewCatalog создаёт пустой каталог.
func NewCatalog() *Catalog {
	return &Catalog{byName: make(map[string]sorter.Algorithm)}
}

// Add добавляет алгоритм. Возвращает ошибку при совпадении имён без учёта регистра.
func (c *Catalog) Add(algo sorter.Algorithm) error {
	if algo.Name == "" || algo.New == nil {
		return fmt.Errorf("config: algorithm must have name and constructor")
	}
	key := strings.ToLower(algo.Name)
	if existing, exists := c.byName[key]; exists {
		return fmt.Errorf("config: duplicate algorithm %q (already have %q)", algo.Name, existing.Name)
	}
	c.byName[key] = algo
	c.order = append(c.order, algo.Name)
	return nil
}

// ByName возвращает алгоритм по имени.
func (c *Catalog) ByName(name string) (sorter.Algorithm, bool) {
	if c == nil {
		return sorter.Algorithm{}, false
	}
	algo, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return algo, ok
}

// Names возвращает имена в порядке ротации.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

// All возвращает алгоритмы в порядке ротации.
func (c *Catalog) All() []sorter.Algorithm {
	if c == nil {
		return nil
	}
	out := make([]sorter.Algorithm, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[strings.ToLower(name)])
	}
	return out
}

func (c *Catalog) Count() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}
