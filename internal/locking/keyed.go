package locking

import "sync"

// Keyed — пер-ключевой мьютекс. Используется для сериализации
// read-modify-write операций по одному устройству (телеметрия, rebind):
// показания разных устройств идут параллельно, одного — по очереди.
type Keyed struct {
	mu    sync.Mutex
	locks map[uint]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyed() *Keyed {
	return &Keyed{locks: map[uint]*entry{}}
}

// Lock блокирует ключ и возвращает функцию разблокировки.
func (k *Keyed) Lock(key uint) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
