package authstate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// PersistentState hands values from a server render to a client render.
// On the server callbacks write during Persist; on the client values
// restored from the payload can be taken once.
type PersistentState struct {
	mu         sync.Mutex
	nextID     uint64
	callbacks  map[uint64]PersistingCallback
	order      []uint64
	persisting bool
	persisted  bool
	entries    map[string]json.RawMessage
	logger     Logger
	provider   LoggerProvider
}

var (
	_ PersistenceRegistrar = (*PersistentState)(nil)
	_ SnapshotSource       = (*PersistentState)(nil)
)

// NewPersistentState returns an empty state ready for the server side
func NewPersistentState() *PersistentState {
	provider, logger := ResolveLogger("authstate.persistence", nil, nil)
	return &PersistentState{
		callbacks: map[uint64]PersistingCallback{},
		entries:   map[string]json.RawMessage{},
		logger:    logger,
		provider:  provider,
	}
}

// RestorePersistentState decodes a payload produced by Persist. An empty
// payload restores an empty state.
func RestorePersistentState(payload string) (*PersistentState, error) {
	s := NewPersistentState()
	s.persisted = true

	payload = strings.TrimSpace(payload)
	if payload == "" {
		return s, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode persisted state payload").
			WithTextCode(textCodeInvalidPayload)
	}

	if err := json.Unmarshal(raw, &s.entries); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to unmarshal persisted state payload").
			WithTextCode(textCodeInvalidPayload)
	}

	if s.entries == nil {
		s.entries = map[string]json.RawMessage{}
	}

	return s, nil
}

// WithLogger overrides the logger
func (s *PersistentState) WithLogger(logger Logger) *PersistentState {
	s.provider, s.logger = ResolveLogger("authstate.persistence", s.provider, logger)
	return s
}

// WithLoggerProvider overrides the logger provider
func (s *PersistentState) WithLoggerProvider(provider LoggerProvider) *PersistentState {
	s.provider, s.logger = ResolveLogger("authstate.persistence", provider, s.logger)
	return s
}

// RegisterOnPersisting adds a callback run by Persist
func (s *PersistentState) RegisterOnPersisting(cb PersistingCallback) PersistingSubscription {
	if cb == nil {
		return &persistingSubscription{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.callbacks[id] = cb
	s.order = append(s.order, id)

	return &persistingSubscription{state: s, id: id}
}

// Callbacks returns the number of registered persisting callbacks
func (s *PersistentState) Callbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callbacks)
}

// PersistAsJSON stores value under key. It is only valid while Persist
// runs the callbacks.
func (s *PersistentState) PersistAsJSON(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.persisting {
		return ErrPersistWindowClosed
	}

	if _, exists := s.entries[key]; exists {
		return ErrDuplicateStateKey
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to marshal persisted value").
			WithMetadata(map[string]any{"key": key})
	}

	s.entries[key] = raw
	return nil
}

// Persist opens the persisting window, runs every callback in registration
// order and returns the encoded payload. Callback errors are joined and
// returned together with whatever payload the other callbacks produced.
func (s *PersistentState) Persist(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.persisted || s.persisting {
		s.mu.Unlock()
		return "", ErrAlreadyPersisted
	}
	s.persisting = true
	callbacks := make([]PersistingCallback, 0, len(s.order))
	for _, id := range s.order {
		callbacks = append(callbacks, s.callbacks[id])
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.persisting = false
		s.persisted = true
		s.mu.Unlock()
	}()

	var errs []error
	for _, cb := range callbacks {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := cb(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	payload, err := s.encode()
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		s.logger.Debug("persisting callbacks reported errors", "count", len(errs))
	}

	return payload, errors.Join(errs...)
}

// TryTakeFromJSON decodes the value stored under key into dst and removes
// it. It reports false when there is no such key.
func (s *PersistentState) TryTakeFromJSON(key string, dst any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()

	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to unmarshal persisted value").
			WithTextCode(textCodeInvalidPayload).
			WithMetadata(map[string]any{"key": key})
	}

	return true, nil
}

func (s *PersistentState) encode() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return "", nil
	}

	raw, err := json.Marshal(s.entries)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to marshal persisted state")
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func (s *PersistentState) unregister(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.callbacks, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

type persistingSubscription struct {
	state *PersistentState
	id    uint64
	once  sync.Once
}

func (p *persistingSubscription) Close() {
	if p.state == nil {
		return
	}
	p.once.Do(func() {
		p.state.unregister(p.id)
	})
}
