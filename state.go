package authstate

import (
	"context"
	"sync"
)

// AuthenticationState is the authentication state of the current user
type AuthenticationState struct {
	Principal *Principal
}

// AnonymousState returns a state holding an anonymous principal
func AnonymousState() AuthenticationState {
	return AuthenticationState{Principal: AnonymousPrincipal()}
}

// IsAuthenticated reports whether the state principal is authenticated
func (s AuthenticationState) IsAuthenticated() bool {
	return s.Principal.IsAuthenticated()
}

// StateTask is a one shot awaitable authentication state
type StateTask struct {
	done  chan struct{}
	once  sync.Once
	state AuthenticationState
	err   error
}

// NewStateTask returns a pending task, complete it with Resolve
func NewStateTask() *StateTask {
	return &StateTask{done: make(chan struct{})}
}

// CompletedState returns a task already resolved to state
func CompletedState(state AuthenticationState) *StateTask {
	t := NewStateTask()
	t.Resolve(state, nil)
	return t
}

// Resolve completes the task. Only the first call has effect.
func (t *StateTask) Resolve(state AuthenticationState, err error) {
	t.once.Do(func() {
		if state.Principal == nil {
			state.Principal = AnonymousPrincipal()
		}
		t.state = state
		t.err = err
		close(t.done)
	})
}

// Await blocks until the task resolves or ctx is done
func (t *StateTask) Await(ctx context.Context) (AuthenticationState, error) {
	select {
	case <-t.done:
		return t.state, t.err
	case <-ctx.Done():
		return AuthenticationState{}, ctx.Err()
	}
}

// StateChangedHandler receives every published state task
type StateChangedHandler func(task *StateTask)

// StateNotifier fans out authentication state changes to subscribers
type StateNotifier struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]StateChangedHandler
	order    []uint64
}

// NewStateNotifier returns an empty notifier
func NewStateNotifier() *StateNotifier {
	return &StateNotifier{handlers: map[uint64]StateChangedHandler{}}
}

// Subscribe registers handler and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (n *StateNotifier) Subscribe(handler StateChangedHandler) func() {
	if handler == nil {
		return func() {}
	}

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.handlers[id] = handler
	n.order = append(n.order, id)
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.handlers, id)
			for i, v := range n.order {
				if v == id {
					n.order = append(n.order[:i], n.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers task to the current subscribers in subscription order
func (n *StateNotifier) Publish(task *StateTask) {
	n.mu.RLock()
	handlers := make([]StateChangedHandler, 0, len(n.order))
	for _, id := range n.order {
		handlers = append(handlers, n.handlers[id])
	}
	n.mu.RUnlock()

	for _, h := range handlers {
		h(task)
	}
}

// Len returns the number of active subscriptions
func (n *StateNotifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.handlers)
}
