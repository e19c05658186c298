package services

import (
	"errors"
	"time"

	"roomcast/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrRoomMismatch = errors.New("token not valid for this room")
)

// RoomClaims authorizes a client to connect to one room.
type RoomClaims struct {
	Room        domain.RoomName `json:"room"`
	DisplayName string          `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// RoomTokenService issues and verifies HS256 room tokens used by the
// connection-upgrade endpoint and the REST API.
type RoomTokenService struct {
	secret   []byte
	tokenTTL time.Duration
}

func NewRoomTokenService(secret string, tokenTTL time.Duration) *RoomTokenService {
	return &RoomTokenService{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

func (s *RoomTokenService) GenerateToken(room domain.RoomName, displayName string) (string, error) {
	claims := &RoomClaims{
		Room:        room,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *RoomTokenService) ValidateToken(tokenString string) (*RoomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RoomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*RoomClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// ValidateTokenForRoom verifies the token and checks it was minted for the
// requested room.
func (s *RoomTokenService) ValidateTokenForRoom(tokenString string, room domain.RoomName) (*RoomClaims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Room != room {
		return nil, ErrRoomMismatch
	}
	return claims, nil
}
