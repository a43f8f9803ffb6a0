// Package core provides the building blocks of the ormx persistence layer.
// This file defines the lifecycle signal dispatcher. Every record
// construction, save, and delete emits a named signal to the observers
// registered on the model's dispatcher.
//
// Dispatch is synchronous, in registration order, on the same call stack as
// the triggering operation. Observers may mutate the record in place (the
// built-in updated_at touch works this way) but cannot veto the operation:
// an observer error aborts the whole operation and propagates to the caller
// like any other error.
package core

import "sync"

// Signal names a lifecycle notification.
type Signal string

const (
	SignalPreInit    Signal = "pre_init"
	SignalPreSave    Signal = "pre_save"
	SignalPostSave   Signal = "post_save"
	SignalPreDelete  Signal = "pre_delete"
	SignalPostDelete Signal = "post_delete"
)

// InitObserver observes record construction. The record is fully
// constructed when the observer runs.
type InitObserver[T any] func(doc *T) error

// SaveObserver observes saves. created is true when the record had no
// primary key value before the save, or when the caller forced an insert.
type SaveObserver[T any] func(doc *T, created bool) error

// DeleteObserver observes deletions.
type DeleteObserver[T any] func(doc *T) error

// Dispatcher is an explicit, injectable observer registry for one record
// type. A model owns one by default; passing a shared instance to several
// models via WithDispatcher is how cross-cutting observers are wired.
//
// Registration is expected at startup. Registering while saves are in
// flight is not guarded against.
type Dispatcher[T any] struct {
	mutex sync.RWMutex

	preInit    []InitObserver[T]
	preSave    []SaveObserver[T]
	postSave   []SaveObserver[T]
	preDelete  []DeleteObserver[T]
	postDelete []DeleteObserver[T]
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher[T any]() *Dispatcher[T] {
	return &Dispatcher[T]{}
}

// OnPreInit registers an observer for the pre_init signal.
func (d *Dispatcher[T]) OnPreInit(fn InitObserver[T]) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.preInit = append(d.preInit, fn)
}

// OnPreSave registers an observer for the pre_save signal. It runs before
// the delegated write, so record mutations end up in the persisted row.
func (d *Dispatcher[T]) OnPreSave(fn SaveObserver[T]) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.preSave = append(d.preSave, fn)
}

// OnPostSave registers an observer for the post_save signal.
func (d *Dispatcher[T]) OnPostSave(fn SaveObserver[T]) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.postSave = append(d.postSave, fn)
}

// OnPreDelete registers an observer for the pre_delete signal.
func (d *Dispatcher[T]) OnPreDelete(fn DeleteObserver[T]) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.preDelete = append(d.preDelete, fn)
}

// OnPostDelete registers an observer for the post_delete signal.
func (d *Dispatcher[T]) OnPostDelete(fn DeleteObserver[T]) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.postDelete = append(d.postDelete, fn)
}

func (d *Dispatcher[T]) emitInit(doc *T) error {
	d.mutex.RLock()
	observers := d.preInit
	d.mutex.RUnlock()
	for _, fn := range observers {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher[T]) emitSave(signal Signal, doc *T, created bool) error {
	d.mutex.RLock()
	observers := d.preSave
	if signal == SignalPostSave {
		observers = d.postSave
	}
	d.mutex.RUnlock()
	for _, fn := range observers {
		if err := fn(doc, created); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher[T]) emitDelete(signal Signal, doc *T) error {
	d.mutex.RLock()
	observers := d.preDelete
	if signal == SignalPostDelete {
		observers = d.postDelete
	}
	d.mutex.RUnlock()
	for _, fn := range observers {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}
