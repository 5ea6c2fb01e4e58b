package models

import "encoding/json"

// Optional различает три состояния поля в partial-update пейлоаде:
// ключ отсутствует / ключ = null / ключ = значение. Обычный *T это
// различие теряет, а от него зависит семантика rebind порта.
type Optional[T any] struct {
	Set   bool // ключ присутствовал в JSON
	Valid bool // значение не null
	Value T
}

// Some возвращает присутствующее непустое значение (для тестов и вызовов
// мимо JSON-декодера).
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Valid: true, Value: v}
}

// Null возвращает присутствующий явный null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Valid = false
		return nil
	}
	if err := json.Unmarshal(b, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
