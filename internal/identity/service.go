package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-relay"

var ErrInvalidToken = errors.New("invalid resume token")

type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type ResumeClaims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(secret string, ttl time.Duration) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// IssueToken signs a resume token for the given identity.
func (s *Service) IssueToken(id Identity) (string, error) {
	if id.IsZero() {
		return "", fmt.Errorf("issue token: %w", ErrInvalidToken)
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ResumeClaims{
		ID:       id.ID,
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})

	ss, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign resume token: %w", err)
	}
	return ss, nil
}

func (s *Service) ValidateToken(tokenString string) (Identity, error) {
	claims := &ResumeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.ID == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{ID: claims.ID, Username: claims.Username}, nil
}
