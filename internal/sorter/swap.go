package sorter

import "fmt"

// Swap описывает обмен двух позиций буфера.
type Swap struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Significant сообщает, что обмен затрагивает две разные позиции.
func (s Swap) Significant() bool {
	return s.A != s.B
}

func (s Swap) String() string {
	return fmt.Sprintf("%d ⇄ %d", s.A, s.B)
}
