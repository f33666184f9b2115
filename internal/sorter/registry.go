package sorter

import "strings"

const (
	NameBubble       = "Bubblesort"
	NameComb         = "Combsort"
	NameShell        = "Shellsort"
	NameICantBelieve = "I can't believe it can sort"
	NameQuick        = "Quicksort"
)

// Algorithm связывает отображаемое имя с конструктором Producer.
type Algorithm struct {
	Name string
	New  func(*Buffer) *Producer
}

// Порядок определяет очередность ротации в контроллере.
var algorithms = []Algorithm{
	{Name: NameBubble, New: NewBubbleSort},
	{Name: NameComb, New: NewCombSort},
	{Name: NameShell, New: func(b *Buffer) *Producer { return NewShellSort(b) }},
	{Name: NameICantBelieve, New: NewICantBelieveSort},
	{Name: NameQuick, New: NewQuickSort},
}

// Algorithms возвращает копию каталога в порядке ротации.
func Algorithms() []Algorithm {
	return append([]Algorithm(nil), algorithms...)
}

// Names возвращает имена алгоритмов в порядке ротации.
func Names() []string {
	names := make([]string, len(algorithms))
	for i, a := range algorithms {
		names[i] = a.Name
	}
	return names
}

// Lookup ищет алгоритм по имени без учёта регистра.
func Lookup(name string) (Algorithm, bool) {
	for _, a := range algorithms {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Algorithm{}, false
}
