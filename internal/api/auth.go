package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ivanValieri/din-cash/internal/domain"
)

var errTokenInvalid = errors.New("token validation failed")

// AuthConfig controls how bearer tokens are verified. A shared secret enables HS256
// tokens and a JWKS URL enables RS256 tokens; both may be set.
type AuthConfig struct {
	JWTSecret        string
	JWKSURL          string
	ExpectedAudience string
	ExpectedIssuer   string
}

// TokenVerifier turns a bearer token into the identity it was issued for.
type TokenVerifier struct {
	secret   []byte
	jwks     *jwksVerifier
	audience string
	issuer   string
	methods  []string
}

func NewTokenVerifier(cfg AuthConfig) *TokenVerifier {
	v := &TokenVerifier{
		audience: strings.TrimSpace(cfg.ExpectedAudience),
		issuer:   strings.TrimSpace(cfg.ExpectedIssuer),
	}
	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		v.secret = []byte(secret)
		v.methods = append(v.methods, "HS256")
	}
	if jwksURL := strings.TrimSpace(cfg.JWKSURL); jwksURL != "" {
		v.jwks = newJWKSVerifier(jwksURL)
		v.methods = append(v.methods, "RS256")
	}
	return v
}

// Verify validates tokenString and returns the caller's identity.
func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (domain.Identity, error) {
	if len(v.methods) == 0 {
		return domain.Identity{}, errors.New("no token verification method configured")
	}

	parser := jwt.NewParser(jwt.WithValidMethods(v.methods), jwt.WithLeeway(30*time.Second))
	claims := jwt.MapClaims{}

	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if v.secret == nil {
				return nil, errors.New("hmac tokens not accepted")
			}
			return v.secret, nil
		case *jwt.SigningMethodRSA:
			if v.jwks == nil {
				return nil, errors.New("rsa tokens not accepted")
			}
			kid, ok := token.Header["kid"].(string)
			if !ok || strings.TrimSpace(kid) == "" {
				return nil, errors.New("missing kid in token")
			}
			return v.jwks.getPublicKey(ctx, kid)
		}
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	})
	if err != nil || !token.Valid {
		return domain.Identity{}, errTokenInvalid
	}

	if v.issuer != "" {
		issuer, ok := claims["iss"].(string)
		if !ok || issuer != v.issuer {
			return domain.Identity{}, errors.New("issuer mismatch")
		}
	}
	if v.audience != "" && !verifyAudienceClaim(claims["aud"], v.audience) {
		return domain.Identity{}, errors.New("audience mismatch")
	}

	sub, ok := claims["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return domain.Identity{}, errors.New("subject claim missing")
	}

	return domain.Identity{
		Subject: strings.TrimSpace(sub),
		Name:    extractNameClaim(claims),
		Contact: extractContactClaim(claims),
	}, nil
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}

	return token, true
}

func verifyAudienceClaim(audClaim any, expected string) bool {
	switch aud := audClaim.(type) {
	case string:
		return aud == expected
	case []any:
		for _, item := range aud {
			s, ok := item.(string)
			if ok && s == expected {
				return true
			}
		}
	case []string:
		for _, item := range aud {
			if item == expected {
				return true
			}
		}
	}
	return false
}

// extractContactClaim prefers the e-mail and falls back to the phone number.
func extractContactClaim(claims jwt.MapClaims) string {
	if email, ok := claims["email"].(string); ok {
		if trimmed := strings.ToLower(strings.TrimSpace(email)); trimmed != "" {
			return trimmed
		}
	}
	if phone, ok := claims["phone"].(string); ok {
		return strings.TrimSpace(phone)
	}
	return ""
}

func extractNameClaim(claims jwt.MapClaims) string {
	if metadata, ok := claims["user_metadata"].(map[string]any); ok {
		for _, key := range []string{"name", "full_name"} {
			if value, ok := metadata[key].(string); ok && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value)
			}
		}
	}
	if value, ok := claims["name"].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

type jwksVerifier struct {
	jwksURL    string
	httpClient *http.Client
	cacheTTL   time.Duration

	mu       sync.RWMutex
	expires  time.Time
	keyByKID map[string]*rsa.PublicKey
}

func newJWKSVerifier(jwksURL string) *jwksVerifier {
	return &jwksVerifier{
		jwksURL:    jwksURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		cacheTTL:   10 * time.Minute,
		keyByKID:   map[string]*rsa.PublicKey{},
	}
}

func (v *jwksVerifier) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key := v.getCachedKey(kid); key != nil {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	if key := v.getCachedKey(kid); key != nil {
		return key, nil
	}

	return nil, fmt.Errorf("key not found for kid %s", kid)
}

func (v *jwksVerifier) getCachedKey(kid string) *rsa.PublicKey {
	now := time.Now()

	v.mu.RLock()
	defer v.mu.RUnlock()

	if now.After(v.expires) {
		return nil
	}
	return v.keyByKID[kid]
}

func (v *jwksVerifier) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}

	keys := map[string]*rsa.PublicKey{}
	for _, key := range payload.Keys {
		if key.Kid == "" || key.Kty != "RSA" || key.N == "" || key.E == "" {
			continue
		}
		pub, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		keys[key.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("no usable RSA keys in JWKS")
	}

	v.mu.Lock()
	v.keyByKID = keys
	v.expires = time.Now().Add(v.cacheTTL)
	v.mu.Unlock()

	return nil
}

func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}
	if exp == 0 {
		return nil, errors.New("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp),
	}, nil
}
