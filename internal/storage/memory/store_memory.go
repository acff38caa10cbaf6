// Package memory provides the in-memory Store implementation. It keeps the
// initial deployment lightweight and doubles as the fixture for service and
// handler tests. It intentionally favors clarity over performance.
package memory

import (
	"context"
	"sync"

	"hearth/internal/storage"
	"hearth/pkg/sentinel"
)

type deviceKey struct {
	userID   string
	deviceID string
}

// Store holds all registration state behind a single mutex so that
// insert-if-absent and token replacement observe a consistent view.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]storage.Account // keyed by localpart
	devices  map[deviceKey]storage.Device
	tokens   map[string]storage.AccessToken // keyed by token value
	byDevice map[deviceKey]string           // device -> active token value
}

func New() *Store {
	return &Store{
		accounts: make(map[string]storage.Account),
		devices:  make(map[deviceKey]storage.Device),
		tokens:   make(map[string]storage.AccessToken),
		byDevice: make(map[deviceKey]string),
	}
}

func (s *Store) UsernameExists(_ context.Context, localpart string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[localpart]
	return ok, nil
}

func (s *Store) InsertAccount(_ context.Context, account storage.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.Localpart]; ok {
		return sentinel.ErrConflict
	}
	s.accounts[account.Localpart] = account
	return nil
}

func (s *Store) InsertOrReplaceDeviceToken(_ context.Context, device storage.Device, token storage.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := deviceKey{userID: device.UserID, deviceID: device.ID}
	s.devices[key] = device

	// Drop the device's prior token before binding the new one. Both steps
	// happen under the same lock so no reader ever sees two active tokens
	// for one device.
	if prior, ok := s.byDevice[key]; ok {
		delete(s.tokens, prior)
	}
	s.tokens[token.Token] = token
	s.byDevice[key] = token.Token
	return nil
}

func (s *Store) TokenByValue(_ context.Context, value string) (*storage.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[value]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &token, nil
}

// AccountByLocalpart is a test convenience not part of storage.Store.
func (s *Store) AccountByLocalpart(localpart string) (storage.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[localpart]
	return account, ok
}
