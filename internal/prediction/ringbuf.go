package prediction

import "github.com/annel0/realm-server/internal/protocol"

// DefaultRingCapacity ёмкость буфера неподтверждённых вводов
const DefaultRingCapacity = 128

// BufferedInput один сохранённый ввод для replay
type BufferedInput struct {
	Seq      uint32
	Cmd      protocol.Command
	Dt       float64
	Revision uint32 // Ревизия параметров физики на момент ввода
}

// InputRing — ограниченный кольцевой буфер вводов.
// При переполнении выбрасывается самый старый неподтверждённый ввод:
// это осознанная lossy-деградация при экстремальной задержке ack,
// ввод игрока никогда не блокируется.
type InputRing struct {
	buf     []BufferedInput
	head    int // Индекс самого старого элемента
	size    int
	dropped uint64
}

// NewInputRing создаёт буфер указанной ёмкости
func NewInputRing(capacity int) *InputRing {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &InputRing{buf: make([]BufferedInput, capacity)}
}

// Push добавляет ввод; самый старый выбрасывается при переполнении
func (r *InputRing) Push(in BufferedInput) {
	if r.size == len(r.buf) {
		r.head = (r.head + 1) % len(r.buf)
		r.size--
		r.dropped++
	}
	r.buf[(r.head+r.size)%len(r.buf)] = in
	r.size++
}

// DropThrough отбрасывает вводы с seq <= acked
func (r *InputRing) DropThrough(acked uint32) {
	for r.size > 0 && r.buf[r.head].Seq <= acked {
		r.head = (r.head + 1) % len(r.buf)
		r.size--
	}
}

// All возвращает оставшиеся вводы в исходном порядке
func (r *InputRing) All() []BufferedInput {
	out := make([]BufferedInput, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

// Len возвращает число буферизованных вводов
func (r *InputRing) Len() int { return r.size }

// Span возвращает диапазон seq в буфере (0,0 для пустого)
func (r *InputRing) Span() (uint32, uint32) {
	if r.size == 0 {
		return 0, 0
	}
	first := r.buf[r.head].Seq
	last := r.buf[(r.head+r.size-1)%len(r.buf)].Seq
	return first, last
}

// Dropped возвращает счётчик выброшенных по переполнению вводов
func (r *InputRing) Dropped() uint64 { return r.dropped }

// Reset очищает буфер
func (r *InputRing) Reset() {
	r.head = 0
	r.size = 0
}
