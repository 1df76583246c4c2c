package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrExpired is returned by parse operations when the token is past its
// embedded expiry but otherwise well formed.
var ErrExpired = errors.New("token expired")

// ErrInvalid is returned when a token fails signature or claim verification.
var ErrInvalid = errors.New("token invalid")

// Config holds the issuance parameters. Access and refresh tokens are signed
// with distinct HS256 keys; NewManager rejects a shared key.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	AccessKey  []byte
	RefreshKey []byte
	Issuer     string
	Leeway     time.Duration
}

// AccessClaims is the payload of an access token. SID binds the token to its
// server-side session.
type AccessClaims struct {
	UID  string `json:"uid"`
	Role string `json:"role"`
	SID  string `json:"sid"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. The RT marker
// distinguishes it from access tokens even before key selection.
type RefreshClaims struct {
	UID string `json:"uid"`
	SID string `json:"sid"`
	RT  bool   `json:"rt"`
	jwt.RegisteredClaims
}

// Manager mints and verifies the engine's token pair. It is the only place
// in the module that reads or writes claims.
type Manager struct {
	config Config
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if len(cfg.AccessKey) < 32 || len(cfg.RefreshKey) < 32 {
		return nil, errors.New("signing keys must be at least 32 bytes")
	}
	if string(cfg.AccessKey) == string(cfg.RefreshKey) {
		return nil, errors.New("access and refresh keys must differ")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// AccessTTL reports the configured access-token lifetime. The session
// registry derives session expiry from it.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// IssueAccess mints an access token embedding the identity id, role, and
// session id.
func (m *Manager) IssueAccess(uid, role, sid string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.AccessTTL)

	claims := AccessClaims{
		UID:  uid,
		Role: role,
		SID:  sid,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.AccessKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssueRefresh mints a refresh token embedding the identity id and the
// refresh marker, signed with the refresh key.
func (m *Manager) IssueRefresh(uid, sid string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.RefreshTTL)

	claims := RefreshClaims{
		UID: uid,
		SID: sid,
		RT:  true,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.RefreshKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAccess verifies an access token's signature and expiry.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, m.config.AccessKey); err != nil {
		return nil, err
	}
	if claims.UID == "" || claims.SID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token's signature, expiry, and marker.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, m.config.RefreshKey); err != nil {
		return nil, err
	}
	if !claims.RT || claims.UID == "" || claims.SID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, key []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrInvalid
	}
	if !token.Valid {
		return ErrInvalid
	}
	return nil
}

// ExpiryOf extracts the embedded expiry without verifying the signature.
// Used only for revocation-list bookkeeping, never for authorization.
func ExpiryOf(tokenStr string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, &claims); err != nil {
		return time.Time{}, ErrInvalid
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrInvalid
	}
	return claims.ExpiresAt.Time, nil
}
