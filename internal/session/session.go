// Package session holds one identity's bearer token.
//
// A Session is constructed with credentials, logs in on first use through the OAuth2
// password grant, and reuses the token until the process exits. It never re-authenticates
// on its own: once the token expires every call fails with an authentication error, and a
// caller that wants a fresh token calls Login explicitly.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/errdefs"
)

// Endpoint describes the token endpoint of the identity service.
type Endpoint struct {
	TokenURL string
	ClientID string
	Scope    string
}

// Credentials are the username and password exchanged for a token.
type Credentials struct {
	Username string
	Password string
}

// Session is safe for concurrent use.
type Session struct {
	creds  Credentials
	oauth  *oauth2.Config
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		s.client = c
	}
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New creates a session. No network call is made until the first Token or Login.
func New(endpoint Endpoint, creds Credentials, opts ...Option) *Session {
	s := &Session{
		creds: creds,
		oauth: &oauth2.Config{
			ClientID: endpoint.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  endpoint.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: strings.Fields(endpoint.Scope),
		},
		client: http.DefaultClient,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "session").Str("username", creds.Username).Logger()
	return s
}

// Username is the identity this session authenticates as.
func (s *Session) Username() string {
	return s.creds.Username
}

// Login exchanges the credentials for a new token, replacing any cached one.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.login(ctx)
}

// Token returns the cached bearer token, logging in on first use.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		if err := s.login(ctx); err != nil {
			return "", err
		}
	}
	if !s.token.Expiry.IsZero() && !s.now().Before(s.token.Expiry) {
		return "", &errdefs.AuthenticationError{
			Username: s.creds.Username,
			Reason:   fmt.Sprintf("access token expired at %s", s.token.Expiry.Format(time.RFC3339)),
		}
	}
	return s.token.AccessToken, nil
}

func (s *Session) login(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	token, err := s.oauth.PasswordCredentialsToken(ctx, s.creds.Username, s.creds.Password)
	if err != nil {
		return s.authError(err)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token.AccessToken, claims); err == nil {
		if token.Expiry.IsZero() {
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
				token.Expiry = exp.Time
			}
		}
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			s.logger.Debug().Str("subject", sub).Msg("Token subject")
		}
	}

	s.token = token
	s.logger.Debug().Time("expiry", token.Expiry).Msg("Logged in")
	return nil
}

func (s *Session) authError(err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		reason := retrieve.ErrorDescription
		if reason == "" {
			reason = retrieve.ErrorCode
		}
		if reason == "" {
			reason = errdefs.ServerMessage(retrieve.Body)
		}
		if retrieve.Response != nil {
			reason = fmt.Sprintf("%d - %s", retrieve.Response.StatusCode, reason)
		}
		return &errdefs.AuthenticationError{Username: s.creds.Username, Reason: reason}
	}
	return &errdefs.AuthenticationError{Username: s.creds.Username, Err: err}
}
