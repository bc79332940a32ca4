// Package credentials stores the named server contexts of dittoswapctl:
// which daemon to talk to and which token to present.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

const (
	dirName  = "dittoswapctl"
	fileName = "contexts.yaml"
)

var (
	ErrNoCurrentContext = errors.New("no current context (run 'dittoswapctl context add' first)")
	ErrContextNotFound  = errors.New("context not found")
)

// Context is one daemon the CLI can talk to.
type Context struct {
	ServerURL string    `yaml:"server_url"`
	Token     string    `yaml:"token,omitempty"`
	Role      string    `yaml:"role,omitempty"`
	ExpiresAt time.Time `yaml:"expires_at,omitempty"`
}

// Expired reports whether the stored token has expired. Contexts without
// a token, or with a token carrying no expiry, never expire.
func (c *Context) Expired(now time.Time) bool {
	return c.Token != "" && !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// SetToken stores token and reads its role and expiry from the claims. The
// signature is not checked here, the daemon does that.
func (c *Context) SetToken(token string) error {
	c.Token, c.Role, c.ExpiresAt = token, "", time.Time{}
	if token == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("malformed token: %w", err)
	}
	if role, ok := claims["role"].(string); ok {
		c.Role = role
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return nil
}

type file struct {
	Current  string              `yaml:"current_context"`
	Contexts map[string]*Context `yaml:"contexts"`
}

// Store is the on-disk set of contexts.
type Store struct {
	path string
	data file
}

// DefaultPath returns $XDG_CONFIG_HOME/dittoswapctl/contexts.yaml, falling
// back to ~/.config.
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, dirName, fileName), nil
}

// Open loads the store at path. A missing file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: file{Contexts: map[string]*Context{}}}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.data.Contexts == nil {
		s.data.Contexts = map[string]*Context{}
	}
	return s, nil
}

// OpenDefault opens the store at DefaultPath.
func OpenDefault() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Open(path)
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	raw, err := yaml.Marshal(&s.data)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0600)
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// CurrentName returns the name of the current context, or "".
func (s *Store) CurrentName() string { return s.data.Current }

// Current returns the current context.
func (s *Store) Current() (*Context, error) {
	if s.data.Current == "" {
		return nil, ErrNoCurrentContext
	}
	return s.Get(s.data.Current)
}

// Get returns the named context.
func (s *Store) Get(name string) (*Context, error) {
	c, ok := s.data.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContextNotFound, name)
	}
	return c, nil
}

// Names returns the context names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.data.Contexts))
	for name := range s.data.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set adds or replaces a context. The first context added becomes current.
func (s *Store) Set(name string, c *Context) error {
	s.data.Contexts[name] = c
	if s.data.Current == "" {
		s.data.Current = name
	}
	return s.save()
}

// Use makes name the current context.
func (s *Store) Use(name string) error {
	if _, err := s.Get(name); err != nil {
		return err
	}
	s.data.Current = name
	return s.save()
}

// Delete removes a context, clearing the current selection if it was
// the one removed.
func (s *Store) Delete(name string) error {
	if _, err := s.Get(name); err != nil {
		return err
	}
	delete(s.data.Contexts, name)
	if s.data.Current == name {
		s.data.Current = ""
	}
	return s.save()
}
