// Package gate decides whether a request's bearer credential was issued by
// the trusted authority for this API.
package gate

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoCredential is returned when the Authorization header is missing or
// does not use the Bearer scheme.
var ErrNoCredential = errors.New("no bearer credential")

type Config struct {
	Issuer        string
	Audience      string
	DiscoveryURL  string
	FetchTimeout  time.Duration
	MinRefreshGap time.Duration
	Leeway        time.Duration
}

// Claims are the validated claims of an accepted token.
type Claims struct {
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	ObjectID          string `json:"oid,omitempty"`
	jwt.RegisteredClaims
}

// Who names the principal for logs.
func (c *Claims) Who() string {
	switch {
	case c.PreferredUsername != "":
		return c.PreferredUsername
	case c.Name != "":
		return c.Name
	default:
		return c.Subject
	}
}

// Recorder receives the outcome of every authorization. reason is empty for
// accepted requests.
type Recorder interface {
	Authorization(accepted bool, reason string)
}

type Gate struct {
	keys   *KeySet
	parser *jwt.Parser
	rec    Recorder
}

func New(cfg Config, keys *KeySet, rec Recorder) *Gate {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	)
	return &Gate{keys: keys, parser: parser, rec: rec}
}

// Authorize reports whether the Authorization header value carries an
// acceptable bearer token. Callers only learn accepted or rejected.
func (g *Gate) Authorize(ctx context.Context, header string) bool {
	_, ok := g.Principal(ctx, header)
	return ok
}

// Principal is Authorize returning the validated claims of an accepted token.
func (g *Gate) Principal(ctx context.Context, header string) (*Claims, bool) {
	claims, err := g.validate(ctx, header)
	if err != nil {
		reason := rejectReason(err)
		if reason != "no_credential" {
			log.Printf("rejected bearer token (%s): %v", reason, err)
		}
		g.rec.Authorization(false, reason)
		return nil, false
	}
	g.rec.Authorization(true, "")
	return claims, true
}

func (g *Gate) validate(ctx context.Context, header string) (*Claims, error) {
	token, ok := bearerToken(header)
	if !ok {
		return nil, ErrNoCredential
	}
	claims := &Claims{}
	_, err := g.parser.ParseWithClaims(token, claims, g.keys.Keyfunc(ctx))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNoCredential):
		return "no_credential"
	case errors.Is(err, ErrKeysUnavailable):
		return "keys_unavailable"
	case errors.Is(err, ErrKeyNotFound):
		return "unknown_key"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "not_yet_valid"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "audience"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
