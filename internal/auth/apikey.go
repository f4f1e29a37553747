package auth

import (
	"sync"
)

// APIKeyStore manages API keys and their associated principals
type APIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*Principal
}

// NewAPIKeyStore creates a new API key store
func NewAPIKeyStore() *APIKeyStore {
	return &APIKeyStore{
		keys: make(map[string]*Principal),
	}
}

// AddKey adds an API key with its associated principal
func (s *APIKeyStore) AddKey(apiKey string, principal *Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[apiKey] = principal
}

// GetPrincipal retrieves a principal by API key
func (s *APIKeyStore) GetPrincipal(apiKey string) (*Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	principal, ok := s.keys[apiKey]
	return principal, ok
}

// RemoveKey removes an API key
func (s *APIKeyStore) RemoveKey(apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, apiKey)
}

// FullAccess returns a principal allowed to run every operation.
func FullAccess(principalID string) *Principal {
	return &Principal{
		PrincipalID: principalID,
		Permissions: map[string][]Permission{
			ResourceFormats:   {PermissionRead},
			ResourceCreatives: {PermissionRead, PermissionWrite},
		},
	}
}

// ReadOnly returns a principal limited to catalog and preview operations.
func ReadOnly(principalID string) *Principal {
	return &Principal{
		PrincipalID: principalID,
		Permissions: map[string][]Permission{
			ResourceFormats:   {PermissionRead},
			ResourceCreatives: {PermissionRead},
		},
	}
}

// InitializeAPIKeys builds the key store from the configured full-access key.
// An empty key yields an empty store.
func InitializeAPIKeys(fullAccessKey string) *APIKeyStore {
	store := NewAPIKeyStore()
	if fullAccessKey != "" {
		store.AddKey(fullAccessKey, FullAccess("principal_env"))
	}
	return store
}
