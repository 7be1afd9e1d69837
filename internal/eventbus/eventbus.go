package eventbus

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// Handler processes events of type T.
type Handler[T any] func(context.Context, T)

type subscription struct {
	id uint64
	fn func(context.Context, any)
}

// Bus is an in-process event dispatcher keyed by the event's dynamic type.
// Handlers run synchronously on the publisher's goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[reflect.Type][]subscription
}

// New creates an empty Bus.
func New() *Bus { return &Bus{subs: make(map[reflect.Type][]subscription)} }

func (b *Bus) subscribe(t reflect.Type, fn func(context.Context, any)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[t]
			for i, s := range subs {
				if s.id == id {
					subs = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(subs) == 0 {
				delete(b.subs, t)
			} else {
				b.subs[t] = subs
			}
		})
	}
}

func (b *Bus) emit(ctx context.Context, e any) {
	if b == nil {
		return
	}
	t := reflect.TypeOf(e)
	b.mu.RLock()
	subs := b.subs[t]
	b.mu.RUnlock()
	// subs is never mutated in place, so it is safe to range without the lock
	for _, s := range subs {
		s.fn(ctx, e)
	}
}

var global atomic.Pointer[Bus]

// Use installs b as the process-wide bus. Passing nil disables publishing.
func Use(b *Bus) { global.Store(b) }

// SubscribeTo registers h on b for events of type T.
func SubscribeTo[T any](b *Bus, h Handler[T]) (unsubscribe func()) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return b.subscribe(t, func(ctx context.Context, v any) { h(ctx, v.(T)) })
}

// Subscribe registers h with the global bus. Without a global bus it is a no-op.
func Subscribe[T any](h Handler[T]) (unsubscribe func()) {
	if b := global.Load(); b != nil {
		return SubscribeTo(b, h)
	}
	return func() {}
}

// PublishTo sends e to the handlers subscribed on b.
func PublishTo[T any](ctx context.Context, b *Bus, e T) { b.emit(ctx, e) }

// Publish sends e through the global bus.
func Publish[T any](ctx context.Context, e T) {
	if b := global.Load(); b != nil {
		b.emit(ctx, e)
	}
}
