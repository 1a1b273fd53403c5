package signaling

import (
	"crypto/subtle"
	"sync"
)

// TokenStore is the pluggable backend behind the token ACL (spec §4.2,
// §4.7 add_token/list_tokens/allow_token/disallow_token/remove_token). The
// default is in-memory; SPEC_FULL.md also wires an optional Redis-backed
// implementation (pkg/signaling/redistoken.go) grounded on the teacher's
// core/redis_registry.go, for deployments that need the ACL to survive a
// restart.
type TokenStore interface {
	// Exists reports whether token has been added at all.
	Exists(token string) bool

	// Add registers a new token with no plugin access yet.
	Add(token string) error

	// Remove deletes a token and all of its plugin grants.
	Remove(token string) error

	// Allow and Disallow grant/revoke a token's access to a plugin
	// package.
	Allow(token, pluginPackage string) error
	Disallow(token, pluginPackage string) error

	// CanAccess reports whether token is allowed to attach to
	// pluginPackage.
	CanAccess(token, pluginPackage string) bool

	// List returns every known token.
	List() []string
}

// InMemoryTokenStore is the default TokenStore, a mutex-guarded map
// matching the in-process registry's own concurrency shape (spec §5).
type InMemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]map[string]bool
}

func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{tokens: make(map[string]map[string]bool)}
}

func (s *InMemoryTokenStore) Exists(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	return ok
}

func (s *InMemoryTokenStore) Add(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		s.tokens = make(map[string]map[string]bool)
	}
	if _, ok := s.tokens[token]; !ok {
		s.tokens[token] = make(map[string]bool)
	}
	return nil
}

func (s *InMemoryTokenStore) Remove(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token]; !ok {
		return ErrTokenNotFound
	}
	delete(s.tokens, token)
	return nil
}

func (s *InMemoryTokenStore) Allow(token, pkg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	grants, ok := s.tokens[token]
	if !ok {
		return ErrTokenNotFound
	}
	grants[pkg] = true
	return nil
}

func (s *InMemoryTokenStore) Disallow(token, pkg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	grants, ok := s.tokens[token]
	if !ok {
		return ErrTokenNotFound
	}
	delete(grants, pkg)
	return nil
}

func (s *InMemoryTokenStore) CanAccess(token, pkg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	grants, ok := s.tokens[token]
	if !ok {
		return false
	}
	return grants[pkg]
}

func (s *InMemoryTokenStore) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tokens))
	for t := range s.tokens {
		out = append(out, t)
	}
	return out
}

// Auth bundles both orthogonal authorization mechanisms (spec §4.2): the
// API secret and token auth. Both are optional and independently
// configured.
type Auth struct {
	apiSecret      string
	apiSecretSet   bool
	adminSecret    string
	adminSecretSet bool
	tokenAuthOn    bool
	Tokens         TokenStore
}

// NewAuth constructs an Auth module. Pass "" for apiSecret/adminSecret to
// leave that mechanism disabled.
func NewAuth(apiSecret, adminSecret string, tokenAuthOn bool, store TokenStore) *Auth {
	if store == nil {
		store = NewInMemoryTokenStore()
	}
	return &Auth{
		apiSecret:      apiSecret,
		apiSecretSet:   apiSecret != "",
		adminSecret:    adminSecret,
		adminSecretSet: adminSecret != "",
		tokenAuthOn:    tokenAuthOn,
		Tokens:         store,
	}
}

// constantTimeEquals compares two secrets without leaking timing
// information, as spec §4.2 requires for both the API secret and admin
// secret checks.
func constantTimeEquals(a, b string) bool {
	if len(a) != len(b) {
		// still do a comparison of equal-length dummies to avoid an
		// early-return timing signal on length alone.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Authorized implements spec §4.2: a request is authorized iff the API
// secret matches, or a valid token is presented, or both mechanisms are
// disabled.
func (a *Auth) Authorized(apisecret, token string) bool {
	if !a.apiSecretSet && !a.tokenAuthOn {
		return true
	}
	if a.apiSecretSet && constantTimeEquals(apisecret, a.apiSecret) {
		return true
	}
	if a.tokenAuthOn && token != "" && a.Tokens.Exists(token) {
		return true
	}
	return false
}

// PluginAllowed enforces the token->plugin ACL at attach time (spec §4.3
// attach). When token auth is disabled, every plugin is reachable.
func (a *Auth) PluginAllowed(token, pluginPackage string) bool {
	if !a.tokenAuthOn {
		return true
	}
	return a.Tokens.CanAccess(token, pluginPackage)
}

// AdminAuthorized checks the admin API's independent secret (spec §4.2,
// §4.7): "All mutators require the admin secret when configured."
func (a *Auth) AdminAuthorized(secret string) bool {
	if !a.adminSecretSet {
		return true
	}
	return constantTimeEquals(secret, a.adminSecret)
}
