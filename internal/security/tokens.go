package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, forged, or issued for another audience.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when an otherwise valid token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// ChangeClaims holds JWT claims for the confirmation link of a change request.
type ChangeClaims struct {
	jwt.RegisteredClaims
	RequestID      string `json:"rid"`
	CurrentValue   string `json:"cur"`
	RequestedValue string `json:"req"`
	OriginIP       string `json:"ip,omitempty"`
	UserAgent      string `json:"ua,omitempty"`
}

// ChangeToken is the decoded content of a confirmation token.
type ChangeToken struct {
	RequestID      string
	SubjectID      string
	CurrentValue   string
	RequestedValue string
	OriginIP       string
	UserAgent      string
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

// ChangeTokenProvider issues and validates confirmation JWTs using RS256 or ES256 (private/public key).
// The token is a capability only: callers look up the stored request by the token's hash.
type ChangeTokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	ttl        time.Duration
}

// NewChangeTokenProvider returns a provider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on confirm.
func NewChangeTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttl time.Duration) *ChangeTokenProvider {
	return &ChangeTokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
	}
}

// Issue signs a token for c, valid from now for the provider's TTL.
// Returns the token string and its expiration time.
func (p *ChangeTokenProvider) Issue(c ChangeToken, now time.Time) (token string, expiresAt time.Time, err error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now = now.UTC().Truncate(time.Second)
	expiresAt = now.Add(p.ttl)
	claims := ChangeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   c.SubjectID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		RequestID:      c.RequestID,
		CurrentValue:   c.CurrentValue,
		RequestedValue: c.RequestedValue,
		OriginIP:       c.OriginIP,
		UserAgent:      c.UserAgent,
	}
	token, err = p.sign(claims)
	return token, expiresAt, err
}

func (p *ChangeTokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// Validate parses the token and checks signature, exp, iss and aud as of now.
// Returns ErrTokenExpired for a genuine but stale token and ErrInvalidToken for everything else.
func (p *ChangeTokenProvider) Validate(tokenString string, now time.Time) (*ChangeToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ChangeClaims{}, func(token *jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	},
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*ChangeClaims)
	if !ok || !token.Valid || claims.RequestID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	out := &ChangeToken{
		RequestID:      claims.RequestID,
		SubjectID:      claims.Subject,
		CurrentValue:   claims.CurrentValue,
		RequestedValue: claims.RequestedValue,
		OriginIP:       claims.OriginIP,
		UserAgent:      claims.UserAgent,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
