package auth

import "sync"

// Credential holds the process-wide bearer token, set at login and cleared
// at logout. Consumers read it once per attach; a token change does not
// refresh a live connection — the caller re-attaches after a logout/login
// transition.
type Credential struct {
	mu    sync.RWMutex
	token string
}

// Set stores a fresh token.
func (c *Credential) Set(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Clear wipes the token.
func (c *Credential) Clear() {
	c.Set("")
}

// Token returns the current token, or "" when logged out.
func (c *Credential) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Valid reports whether a non-expired token is present.
func (c *Credential) Valid() bool {
	t := c.Token()
	return t != "" && !Expired(t)
}
