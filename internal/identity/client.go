package identity

import (
	"context"
	"sync"

	"github.com/Shivanand-hulikatti/event-feed/internal/model"
)

// Client holds the current session of one consumer and tells watchers
// whenever it changes. A nil identity means signed out.
type Client struct {
	p *Provider

	mu       sync.Mutex
	cur      *Session
	watchers map[int]func(*model.Identity)
	next     int
}

// NewClient returns a signed-out client.
func NewClient(p *Provider) *Client {
	return &Client{p: p, watchers: make(map[int]func(*model.Identity))}
}

// Start signs in with token when one is given, otherwise anonymously.
// Token sign-in falls back to anonymous on its own.
func (c *Client) Start(ctx context.Context, token string) error {
	if token != "" {
		return c.SignInWithToken(ctx, token)
	}
	return c.SignInAnonymous(ctx)
}

// Current returns the current session, or nil.
func (c *Client) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

// Watch calls fn with the current identity now and after every change.
// The returned func stops the notifications.
func (c *Client) Watch(fn func(*model.Identity)) (cancel func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.watchers[id] = fn
	cur := identityOf(c.cur)
	c.mu.Unlock()

	fn(cur)
	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

func (c *Client) SignInAnonymous(ctx context.Context) error {
	return c.apply(c.p.SignInAnonymous(ctx))
}

func (c *Client) SignInWithToken(ctx context.Context, token string) error {
	return c.apply(c.p.SignInWithToken(ctx, token))
}

func (c *Client) SignInWithCredentials(ctx context.Context, email, password string) error {
	return c.apply(c.p.SignInWithCredentials(ctx, email, password))
}

func (c *Client) RegisterCredentials(ctx context.Context, email, password string) error {
	return c.apply(c.p.RegisterCredentials(ctx, email, password))
}

// SignOut revokes the current token and clears the session.
func (c *Client) SignOut(ctx context.Context) error {
	cur := c.Current()
	if cur == nil {
		return nil
	}
	if err := c.p.SignOut(ctx, cur.Token); err != nil {
		return err
	}
	c.set(nil)
	return nil
}

func (c *Client) apply(s *Session, err error) error {
	if err != nil {
		return err
	}
	c.set(s)
	return nil
}

func (c *Client) set(s *Session) {
	c.mu.Lock()
	c.cur = s
	fns := make([]func(*model.Identity), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	id := identityOf(s)
	for _, fn := range fns {
		fn(id)
	}
}

func identityOf(s *Session) *model.Identity {
	if s == nil {
		return nil
	}
	id := s.Identity
	return &id
}
