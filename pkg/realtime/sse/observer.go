package sse

// Observer is told about live-set changes. Both calls carry the live
// subscriber count after the change and run synchronously on the goroutine
// that caused it, after the registry lock has been released.
type Observer interface {
	SubscriberAdded(count int)
	SubscriberRemoved(count int)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Added   func(count int)
	Removed func(count int)
}

// SubscriberAdded implements Observer.
func (o ObserverFuncs) SubscriberAdded(count int) {
	if o.Added != nil {
		o.Added(count)
	}
}

// SubscriberRemoved implements Observer.
func (o ObserverFuncs) SubscriberRemoved(count int) {
	if o.Removed != nil {
		o.Removed(count)
	}
}

// CountObserver returns an Observer calling fn for both additions and removals.
func CountObserver(fn func(count int)) Observer {
	return ObserverFuncs{Added: fn, Removed: fn}
}

// Observe registers o for subscriber-count notifications.
func (b *Broadcaster[I]) Observe(o Observer) {
	if o == nil {
		return
	}
	b.obsMu.Lock()
	b.observers = append(b.observers, o)
	b.obsMu.Unlock()
}

func (b *Broadcaster[I]) notifyAdded(count int) {
	for _, o := range b.observerSnapshot() {
		o.SubscriberAdded(count)
	}
}

func (b *Broadcaster[I]) notifyRemoved(count int) {
	for _, o := range b.observerSnapshot() {
		o.SubscriberRemoved(count)
	}
}

func (b *Broadcaster[I]) observerSnapshot() []Observer {
	b.obsMu.RLock()
	defer b.obsMu.RUnlock()
	return append([]Observer(nil), b.observers...)
}
