package mockapi

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidToken = errors.New("token is invalid or expired")

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type tokenClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
	UserID    int    `json:"user_id"`
	// Generation lets tests invalidate every outstanding access token at once.
	Generation int `json:"gen"`
}

func (s *Server) issue(userID int, tokenType string, ttl time.Duration) (string, string, error) {
	jti, err := newJTI()
	if err != nil {
		return "", "", err
	}
	now := s.now()
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType:  tokenType,
		UserID:     userID,
		Generation: gen,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	return signed, jti, err
}

func (s *Server) issuePair(userID int) (access, refresh string, err error) {
	access, _, err = s.issue(userID, tokenTypeAccess, s.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, _, err = s.issue(userID, tokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// validate checks signature, expiry and type, and for access tokens that the
// token was issued in the current generation.
func (s *Server) validate(tokenString, tokenType string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, errInvalidToken
	}
	if claims.TokenType != tokenType {
		return nil, errInvalidToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tokenType == tokenTypeAccess && claims.Generation < s.generation {
		return nil, errInvalidToken
	}
	if tokenType == tokenTypeRefresh && s.blacklist[claims.ID] {
		return nil, errInvalidToken
	}
	return claims, nil
}

func newJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
