package jwt

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName = "JWT"

	shortLifetime = time.Hour * 24          // 1 day
	longLifetime  = time.Hour * 24 * 7 * 4 // 4 weeks
)

var ErrInvalidToken = errors.New("invalid token")

type UserToken struct {
	UserID   int64 `json:"userID,string"`
	Remember bool  `json:"rem"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies the bearer credentials used by both the HTTP API
// and the websocket handshake.
type Issuer struct {
	secret  []byte
	isHttps bool
	now     func() time.Time
}

func NewIssuer(secret string, isHttps bool) *Issuer {
	return &Issuer{secret: []byte(secret), isHttps: isHttps, now: time.Now}
}

func (iss *Issuer) CreateToken(rememberMe bool, userID int64) (string, time.Time, error) {
	tokenLifeTime := shortLifetime
	if rememberMe {
		tokenLifeTime = longLifetime
	}

	currentTime := iss.now().UTC()
	expirationDate := currentTime.Add(tokenLifeTime)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, UserToken{
		UserID:   userID,
		Remember: rememberMe,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(expirationDate),
		},
	})

	tokenString, err := token.SignedString(iss.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expirationDate, nil
}

func (iss *Issuer) Cookie(tokenString string, rememberMe bool, expires time.Time) http.Cookie {
	cookie := http.Cookie{
		Name:     CookieName,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		Secure:   iss.isHttps,
		SameSite: http.SameSiteLaxMode,
	}

	if rememberMe {
		cookie.Expires = expires
	}
	return cookie
}

func ExpiredCookie() http.Cookie {
	return http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	}
}

func (iss *Issuer) VerifyToken(tokenString string) (UserToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserToken{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS512 {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return iss.secret, nil
	}, jwt.WithTimeFunc(iss.now), jwt.WithExpirationRequired())
	if err != nil {
		return UserToken{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*UserToken)
	if !ok || claims.UserID == 0 {
		return UserToken{}, ErrInvalidToken
	}
	return *claims, nil
}

// UserID is the identity verification capability the rest of the system
// consumes: bearer credential in, user id out.
func (iss *Issuer) UserID(tokenString string) (int64, error) {
	token, err := iss.VerifyToken(tokenString)
	if err != nil {
		return 0, err
	}
	return token.UserID, nil
}

// NeedsRenewal reports whether a still valid token is old enough to be
// reissued.
func (iss *Issuer) NeedsRenewal(token UserToken) bool {
	if token.IssuedAt == nil {
		return true
	}
	return iss.now().UTC().Sub(token.IssuedAt.Time) >= 15*time.Minute
}
