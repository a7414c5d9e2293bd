package lock

import "errors"

var (
	// ErrLocked — ресурс занят другим держателем.
	ErrLocked = errors.New("resource is locked by another run")

	// ErrNotHeld — lease истёк или перехвачен другим держателем.
	ErrNotHeld = errors.New("lock is not held")

	// ErrLost — продление lease не удалось во время работы.
	ErrLost = errors.New("lock lease lost")
)
