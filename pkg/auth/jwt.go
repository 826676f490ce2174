package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNotAdmin     = errors.New("admin role required")
)

// Claims are issued by the shop's user service; this API only reads them.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

type JWTService interface {
	GenerateToken(subject, email, role string, ttl time.Duration) (string, error)
	ValidateToken(token string) (*Claims, error)
	// ValidateAdmin additionally requires the configured admin role.
	ValidateAdmin(token string) (*Claims, error)
}

type jwtService struct {
	secret    []byte
	issuer    string
	adminRole string
}

func NewJWTService(secret, issuer, adminRole string) JWTService {
	if adminRole == "" {
		adminRole = "admin"
	}
	return &jwtService{secret: []byte(secret), issuer: issuer, adminRole: adminRole}
}

func (s *jwtService) GenerateToken(subject, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Role:  role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *jwtService) ValidateToken(token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *jwtService) ValidateAdmin(token string) (*Claims, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Role != s.adminRole {
		return claims, ErrNotAdmin
	}
	return claims, nil
}
