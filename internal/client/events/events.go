// Package events carries typed notifications between the terminal client's
// components.
package events

import (
	"sync"

	"github.com/atinyakov/imagedash/internal/models"
)

// Topic delivers values of type T to its subscribers. Publish calls the
// subscribers synchronously in subscription order. The zero value is
// ready to use.
type Topic[T any] struct {
	mu   sync.RWMutex
	next int
	subs []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.subs = append(t.subs, subscriber[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, s := range t.subs {
				if s.id == id {
					t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers v to every current subscriber. Subscribers may
// subscribe or unsubscribe from inside the callback.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	subs := make([]subscriber[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// SearchChanged is published when the settled search text changes.
type SearchChanged struct {
	Query string
}

// ImageUploaded is published once an uploaded image has been accepted.
type ImageUploaded struct {
	Image models.Image
}

// Bus groups the topics shared by the gallery components.
type Bus struct {
	SearchChanged Topic[SearchChanged]
	ImageUploaded Topic[ImageUploaded]
}
