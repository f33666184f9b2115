package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v3"

	"github.com/pv/sortmachine-go/internal/sorter"
)

// Profile описывает порядок ротации алгоритмов и именованные наборы.
type Profile struct {
	// Order задаёт порядок ротации; пустой означает порядок встроенного каталога.
	Order []string `json:"order" yaml:"order"`
	// Sets: именованные наборы алгоритмов для селектора.
	Sets map[string][]string `json:"sets" yaml:"sets"`
	// ShellGaps заменяет последовательность шагов Shellsort.
	ShellGaps []int `json:"shell_gaps" yaml:"shell_gaps"`

	catalog *Catalog
}

// Default возвращает профиль со встроенным каталогом.
func Default() *Profile {
	p := &Profile{Sets: map[string][]string{}}
	if err := p.build(); err != nil {
		// встроенный каталог всегда корректен
		panic(err)
	}
	return p
}

// Load загружает профиль из YAML или JSON.
func Load(path string) (*Profile, error) {
	if path == "" {
		return nil, fmt.Errorf("config: path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	p := &Profile{Sets: map[string][]string{}}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("config: failed to decode JSON: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("config: failed to decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: format %s is not supported yet", ext)
	}
	if p.Sets == nil {
		p.Sets = map[string][]string{}
	}
	if err := p.build(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) build() error {
	builtin := NewCatalog()
	for _, algo := range sorter.Algorithms() {
		if algo.Name == sorter.NameShell && len(p.ShellGaps) > 0 {
			gaps, err := validGaps(p.ShellGaps)
			if err != nil {
				return err
			}
			algo.New = func(b *sorter.Buffer) *sorter.Producer { return sorter.NewShellSort(b, gaps...) }
		}
		if err := builtin.Add(algo); err != nil {
			return err
		}
	}
	if len(p.Order) == 0 {
		p.catalog = builtin
	} else {
		p.catalog = NewCatalog()
		for _, name := range p.Order {
			algo, ok := builtin.ByName(name)
			if !ok {
				return fmt.Errorf("config: unknown algorithm %q in order", name)
			}
			if err := p.catalog.Add(algo); err != nil {
				return err
			}
		}
	}
	for set, names := range p.Sets {
		for _, name := range names {
			if _, ok := p.catalog.ByName(name); !ok {
				return fmt.Errorf("config: set %q: unknown algorithm %q", set, name)
			}
		}
	}
	return nil
}

// validGaps проверяет, что шаги убывают и заканчиваются единицей.
func validGaps(gaps []int) ([]int, error) {
	for i, g := range gaps {
		if g <= 0 {
			return nil, fmt.Errorf("config: shell gap must be > 0, got %d", g)
		}
		if i > 0 && g >= gaps[i-1] {
			return nil, fmt.Errorf("config: shell gaps must be strictly decreasing: %v", gaps)
		}
	}
	if gaps[len(gaps)-1] != 1 {
		return nil, fmt.Errorf("config: shell gaps must end with 1: %v", gaps)
	}
	return append([]int(nil), gaps...), nil
}

// Catalog возвращает каталог алгоритмов профиля.
func (p *Profile) Catalog() *Catalog {
	if p == nil {
		return nil
	}
	return p.catalog
}

// Resolve возвращает список алгоритмов согласно селектору в порядке упоминания.
// Селектор: "ALL", имя набора из Sets, имя алгоритма, glob-шаблон или список через запятую.
// Повторы отбрасываются.
func (p *Profile) Resolve(selector string) ([]sorter.Algorithm, error) {
	if p == nil || p.catalog == nil {
		return nil, errors.New("config: profile is nil")
	}
	selector = strings.TrimSpace(selector)
	if selector == "" || strings.EqualFold(selector, "ALL") {
		return p.catalog.All(), nil
	}

	var parts []string
	if strings.Contains(selector, ",") {
		parts = strings.Split(selector, ",")
	} else {
		parts = []string{selector}
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	var out []sorter.Algorithm
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		resolved, err := p.resolveSingle(part)
		if err != nil {
			return nil, err
		}
		for _, algo := range resolved {
			if seen.Add(strings.ToLower(algo.Name)) {
				out = append(out, algo)
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("config: result is empty")
	}
	return out, nil
}

func (p *Profile) resolveSingle(selector string) ([]sorter.Algorithm, error) {
	if names, ok := p.Sets[selector]; ok {
		return p.fromNames(names)
	}
	if algo, ok := p.catalog.ByName(selector); ok {
		return []sorter.Algorithm{algo}, nil
	}
	if strings.ContainsAny(selector, "*?[") {
		return p.fromPattern(selector)
	}
	return nil, fmt.Errorf("config: failed to resolve selector %q", selector)
}

func (p *Profile) fromNames(names []string) ([]sorter.Algorithm, error) {
	out := make([]sorter.Algorithm, 0, len(names))
	for _, name := range names {
		algo, ok := p.catalog.ByName(name)
		if !ok {
			return nil, fmt.Errorf("config: algorithm %q not found", name)
		}
		out = append(out, algo)
	}
	return out, nil
}

func (p *Profile) fromPattern(pattern string) ([]sorter.Algorithm, error) {
	lowered := strings.ToLower(pattern)
	var out []sorter.Algorithm
	for _, algo := range p.catalog.All() {
		ok, err := filepath.Match(lowered, strings.ToLower(algo.Name))
		if err != nil {
			return nil, fmt.Errorf("config: invalid pattern %q: %w", pattern, err)
		}
		if ok {
			out = append(out, algo)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("config: pattern %q matched nothing", pattern)
	}
	return out, nil
}
