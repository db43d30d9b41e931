package session

import (
	"context"
	"sync"

	apperrors "studyroom/internal/errors"
)

// User is the signed-in identity.
type User struct {
	ID          string
	DisplayName string
}

// IdentityProvider is the authentication collaborator: it reports who is
// signed in and hands out bearer tokens for backend calls.
type IdentityProvider interface {
	Current() *User
	Token(ctx context.Context) (string, error)
	// OnChange registers fn for sign-in/sign-out changes and returns a
	// function that unregisters it. fn is called once immediately with the
	// current user.
	OnChange(fn func(*User)) func()
}

// StaticProvider is an IdentityProvider backed by a configured token.
type StaticProvider struct {
	mu        sync.RWMutex
	user      *User
	token     string
	observers map[int]func(*User)
	next      int
}

// NewStaticProvider returns a provider signed in as user with token. An
// empty user id yields a signed-out provider.
func NewStaticProvider(userID, displayName, token string) *StaticProvider {
	p := &StaticProvider{observers: make(map[int]func(*User))}
	if userID != "" {
		p.user = &User{ID: userID, DisplayName: displayName}
		p.token = token
	}
	return p
}

func (p *StaticProvider) Current() *User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

func (p *StaticProvider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil || p.token == "" {
		return "", apperrors.NewAuthError("not signed in")
	}
	return p.token, nil
}

func (p *StaticProvider) OnChange(fn func(*User)) func() {
	p.mu.Lock()
	id := p.next
	p.next++
	p.observers[id] = fn
	p.mu.Unlock()

	fn(p.Current())

	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}
}

// SignIn replaces the current identity and notifies observers.
func (p *StaticProvider) SignIn(user User, token string) {
	p.mu.Lock()
	p.user = &user
	p.token = token
	p.mu.Unlock()
	p.emit()
}

// SignOut clears the identity and notifies observers.
func (p *StaticProvider) SignOut() {
	p.mu.Lock()
	p.user = nil
	p.token = ""
	p.mu.Unlock()
	p.emit()
}

func (p *StaticProvider) emit() {
	current := p.Current()
	p.mu.RLock()
	fns := make([]func(*User), 0, len(p.observers))
	for _, fn := range p.observers {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(current)
	}
}
