package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a legacy token is malformed, has a bad
	// signature or was issued by someone else.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when the signature is valid but exp has passed.
	ErrTokenExpired = errors.New("token expired")
)

// LegacyClaims is the signed payload of a legacy single-token login.
type LegacyClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	DeviceID string `json:"device_id"`
}

// UserID returns the subject claim.
func (c *LegacyClaims) UserID() string { return c.Subject }

// LegacySigner issues and verifies legacy tokens. It signs with HS256 when
// built from a shared secret, or RS256/ES256 when built from a key pair.
type LegacySigner struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	ttl       time.Duration
	now       func() time.Time
}

// NewHMACLegacySigner returns an HS256 signer. secret must not be empty.
func NewHMACLegacySigner(secret []byte, issuer string, ttl time.Duration) (*LegacySigner, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidKey
	}
	return &LegacySigner{
		method:    jwt.SigningMethodHS256,
		signKey:   secret,
		verifyKey: secret,
		issuer:    issuer,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// NewKeyPairLegacySigner returns an RS256 or ES256 signer depending on the key type.
func NewKeyPairLegacySigner(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer string, ttl time.Duration) (*LegacySigner, error) {
	var method jwt.SigningMethod
	switch KeyAlg(publicKey) {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "ES256":
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	if KeyAlg(privateKey.Public()) != method.Alg() {
		return nil, ErrInvalidKey
	}
	return &LegacySigner{
		method:    method,
		signKey:   privateKey,
		verifyKey: publicKey,
		issuer:    issuer,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// Alg returns the JWT alg header value used by the signer.
func (s *LegacySigner) Alg() string { return s.method.Alg() }

// TTL returns the lifetime of issued tokens.
func (s *LegacySigner) TTL() time.Duration { return s.ttl }

// SetClock overrides the signer's time source.
func (s *LegacySigner) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Issue signs a token for the user bound to deviceID. Each token carries a
// random jti so two logins in the same second never produce the same string.
func (s *LegacySigner) Issue(userID, username, deviceID string) (string, *LegacyClaims, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", nil, err
	}
	now := s.now().UTC()
	claims := &LegacyClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Username: username,
		DeviceID: deviceID,
	}
	token, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// Parse verifies signature, algorithm and issuer. When only exp has passed it
// returns the claims together with ErrTokenExpired.
func (s *LegacySigner) Parse(token string) (*LegacyClaims, error) {
	claims := &LegacyClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.verifyKey, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return claims, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
