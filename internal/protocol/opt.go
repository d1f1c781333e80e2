package protocol

import (
	"bytes"
	"encoding/json"
)

// Opt — явное трёхзначное представление опционального поля дельты:
// отсутствует (поле не изменилось), null (поле очищено), значение.
// Динамическое различие "absent vs null" из JSON здесь закреплено тегами.
type Opt[T any] struct {
	Known bool // Поле присутствует в дельте
	Null  bool // Явная очистка поля
	Value T
}

// Set возвращает установленное значение
func Set[T any](v T) Opt[T] {
	return Opt[T]{Known: true, Value: v}
}

// Clear возвращает явную очистку поля
func Clear[T any]() Opt[T] {
	return Opt[T]{Known: true, Null: true}
}

// Unset возвращает отсутствующее поле (без изменения)
func Unset[T any]() Opt[T] {
	return Opt[T]{}
}

// MarshalJSON сериализует значение или null.
// Отсутствующие поля не попадают в JSON — это забота Delta.MarshalJSON.
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON различает null и значение; сам факт наличия ключа
// фиксирует Delta.UnmarshalJSON, выставляя Known.
func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	o.Known = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}
