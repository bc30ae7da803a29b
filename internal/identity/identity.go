// Package identity issues and verifies session identities. A session is
// either anonymous or credentialed; credentialed sessions are backed by an
// account with a bcrypt password hash. Sessions travel as HS256 JWTs and a
// revoked token stays revoked until it would have expired anyway.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Shivanand-hulikatti/event-feed/internal/model"
	"github.com/Shivanand-hulikatti/event-feed/internal/repository"
)

// ErrAuth is returned when credentials or tokens are rejected. Account
// store faults are not ErrAuth; they keep the store's error chain, so an
// unreachable store still satisfies docstore.IsUnavailable.
var ErrAuth = errors.New("authentication failed")

// MinPasswordLength is the shortest password RegisterCredentials accepts.
const MinPasswordLength = 6

// Session is an issued identity and its bearer token.
type Session struct {
	Token     string         `json:"token"`
	Identity  model.Identity `json:"identity"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// Options configures a Provider.
type Options struct {
	Secret      []byte
	TTL         time.Duration
	Issuer      string
	BcryptCost  int
	AdminEmails []string
	Now         func() time.Time
}

type claims struct {
	jwt.RegisteredClaims
	Anonymous bool   `json:"anon"`
	Email     string `json:"email,omitempty"`
}

// Provider is the identity provider.
type Provider struct {
	accounts *repository.AccountRepository
	opts     Options
	admins   map[string]struct{}
	revoked  *gocache.Cache
	log      *zap.Logger
}

// NewProvider constructs a Provider.
func NewProvider(accounts *repository.AccountRepository, opts Options, log *zap.Logger) *Provider {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	admins := make(map[string]struct{}, len(opts.AdminEmails))
	for _, e := range opts.AdminEmails {
		if e = model.NormalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &Provider{
		accounts: accounts,
		opts:     opts,
		admins:   admins,
		revoked:  gocache.New(opts.TTL, 10*time.Minute),
		log:      log,
	}
}

// SignInAnonymous issues a fresh anonymous session.
func (p *Provider) SignInAnonymous(ctx context.Context) (*Session, error) {
	return p.issue(model.Identity{UID: "anon-" + uuid.New().String(), Anonymous: true})
}

// SignInWithToken resumes the session carried by token. A token that does
// not verify is not an error: the caller gets a new anonymous session.
func (p *Provider) SignInWithToken(ctx context.Context, token string) (*Session, error) {
	c, err := p.parse(token)
	if err != nil {
		p.log.Info("token sign in failed, falling back to anonymous", zap.Error(err))
		return p.SignInAnonymous(ctx)
	}
	return &Session{Token: token, Identity: c.identity(), ExpiresAt: c.ExpiresAt.Time}, nil
}

// SignInWithCredentials checks email and password against the stored account.
func (p *Provider) SignInWithCredentials(ctx context.Context, email, password string) (*Session, error) {
	acct, err := p.accounts.Get(ctx, model.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid email or password", ErrAuth)
		}
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: invalid email or password", ErrAuth)
	}
	return p.issue(model.Identity{UID: acct.UID, Email: acct.Email})
}

// RegisterCredentials creates an account and signs it in.
func (p *Provider) RegisterCredentials(ctx context.Context, email, password string) (*Session, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrAuth)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrAuth, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acct := model.Account{
		UID:          uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    p.opts.Now().UnixMilli(),
	}
	if err := p.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, repository.ErrAccountExists) {
			return nil, fmt.Errorf("%w: email already in use", ErrAuth)
		}
		return nil, fmt.Errorf("register credentials: %w", err)
	}
	return p.issue(model.Identity{UID: acct.UID, Email: acct.Email})
}

// SignOut revokes token.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	c, err := p.parse(token)
	if err != nil {
		return err
	}
	ttl := c.ExpiresAt.Time.Sub(p.opts.Now())
	if ttl <= 0 {
		return nil
	}
	p.revoked.Set(c.ID, struct{}{}, ttl)
	return nil
}

// Verify returns the identity carried by a valid, unrevoked token.
func (p *Provider) Verify(token string) (model.Identity, error) {
	c, err := p.parse(token)
	if err != nil {
		return model.Identity{}, err
	}
	return c.identity(), nil
}

// IsAdmin reports whether id may publish events. Any credentialed identity
// qualifies unless an admin allow-list is configured.
func (p *Provider) IsAdmin(id model.Identity) bool {
	if id.Anonymous || id.UID == "" {
		return false
	}
	if len(p.admins) == 0 {
		return true
	}
	_, ok := p.admins[model.NormalizeEmail(id.Email)]
	return ok
}

// OpenAdmin reports whether every credentialed account is an admin.
func (p *Provider) OpenAdmin() bool {
	return len(p.admins) == 0
}

func (p *Provider) issue(id model.Identity) (*Session, error) {
	now := p.opts.Now()
	exp := now.Add(p.opts.TTL)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   id.UID,
			Issuer:    p.opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Anonymous: id.Anonymous,
		Email:     id.Email,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(p.opts.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: token, Identity: id, ExpiresAt: c.ExpiresAt.Time}, nil
}

func (p *Provider) parse(token string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c,
		func(*jwt.Token) (any, error) { return p.opts.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.opts.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.opts.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if _, revoked := p.revoked.Get(c.ID); revoked {
		return nil, fmt.Errorf("%w: token revoked", ErrAuth)
	}
	return c, nil
}

func (c *claims) identity() model.Identity {
	return model.Identity{UID: c.Subject, Anonymous: c.Anonymous, Email: c.Email}
}
