package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/sciforge/toolbridge/protocol"
)

// JWKSConfig configures token validation against a JSON Web Key Set endpoint.
type JWKSConfig struct {
	// JWKSURL is the key set endpoint. Required.
	JWKSURL string
	// ExpectedIssuer, when set, is enforced against the 'iss' claim.
	ExpectedIssuer string
	// ExpectedAudience, when set, is enforced against the 'aud' claim.
	ExpectedAudience string
	// ClockSkew is the leeway applied to time-based claims.
	ClockSkew time.Duration
	// RefreshInterval bounds how often the key set is re-fetched in the
	// background. Defaults to one hour.
	RefreshInterval time.Duration
}

// JWKSTokenValidator validates bearer tokens signed by keys published in a
// JWKS document. Keys are cached between calls; an unknown key ID triggers
// one immediate refresh to cover rotation.
type JWKSTokenValidator struct {
	jwksURL string
	keys    *jwk.Cache
	claims  *jwt.Validator
}

// NewJWKSTokenValidator builds a validator and performs the initial key
// fetch, so a bad endpoint fails at startup rather than on the first call.
func NewJWKSTokenValidator(config JWKSConfig, client *http.Client) (*JWKSTokenValidator, error) {
	if config.JWKSURL == "" {
		return nil, fmt.Errorf("jwks url is required")
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = time.Hour
	}
	if client == nil {
		client = http.DefaultClient
	}

	keys := jwk.NewCache(context.Background())
	if err := keys.Register(config.JWKSURL,
		jwk.WithMinRefreshInterval(config.RefreshInterval),
		jwk.WithHTTPClient(client)); err != nil {
		return nil, fmt.Errorf("registering jwks endpoint %s: %w", config.JWKSURL, err)
	}
	if _, err := keys.Refresh(context.Background(), config.JWKSURL); err != nil {
		return nil, fmt.Errorf("initial jwks fetch from %s: %w", config.JWKSURL, err)
	}

	var opts []jwt.ParserOption
	if config.ExpectedIssuer != "" {
		opts = append(opts, jwt.WithIssuer(config.ExpectedIssuer))
	}
	if config.ExpectedAudience != "" {
		opts = append(opts, jwt.WithAudience(config.ExpectedAudience))
	}
	if config.ClockSkew > 0 {
		opts = append(opts, jwt.WithLeeway(config.ClockSkew))
	}

	return &JWKSTokenValidator{
		jwksURL: config.JWKSURL,
		keys:    keys,
		claims:  jwt.NewValidator(opts...),
	}, nil
}

// jwtPrincipal exposes a validated claim set as a Principal.
type jwtPrincipal struct {
	claims jwt.MapClaims
}

func (p *jwtPrincipal) GetClaims() map[string]interface{} { return p.claims }

func (p *jwtPrincipal) GetSubject() string {
	sub, _ := p.claims.GetSubject()
	return sub
}

// ValidateToken parses and verifies a bearer token. Every failure maps to
// KindUnauthorized so parser internals never reach the client as anything
// but an auth error.
func (v *JWKSTokenValidator) ValidateToken(ctx context.Context, raw string) (Principal, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return v.resolveKey(ctx, t)
	})
	if err != nil {
		return nil, protocol.NewError(protocol.KindUnauthorized, "token rejected: %v", err)
	}
	if !token.Valid {
		return nil, protocol.NewError(protocol.KindUnauthorized, "token rejected")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, protocol.NewError(protocol.KindUnauthorized, "unsupported claims format")
	}
	if err := v.claims.Validate(claims); err != nil {
		return nil, protocol.NewError(protocol.KindUnauthorized, "claim validation failed: %v", err)
	}

	return &jwtPrincipal{claims: claims}, nil
}

// resolveKey finds the verification key named by the token's kid header,
// refreshing the cached set once when the key is missing (rotation).
func (v *JWKSTokenValidator) resolveKey(ctx context.Context, token *jwt.Token) (interface{}, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("token header has no kid")
	}

	set, err := v.keys.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("loading key set: %w", err)
	}
	key, found := set.LookupKeyID(kid)
	if !found {
		if set, err = v.keys.Refresh(ctx, v.jwksURL); err != nil {
			return nil, fmt.Errorf("refreshing key set for kid %q: %w", kid, err)
		}
		if key, found = set.LookupKeyID(kid); !found {
			return nil, fmt.Errorf("no key with kid %q in %s", kid, v.jwksURL)
		}
	}

	var material interface{}
	if err := key.Raw(&material); err != nil {
		return nil, fmt.Errorf("extracting key %q: %w", kid, err)
	}
	return material, nil
}

var _ TokenValidator = (*JWKSTokenValidator)(nil)
