package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	sessionSecret  []byte
	internalSecret []byte
)

func Init(cfg *Config) {
	sessionSecret = []byte(cfg.SessionSecret)
	internalSecret = []byte(cfg.InternalSecret)
}

// VerifyToken authenticates a user-session request and returns the user guid.
func VerifyToken(r *http.Request) (string, error) {
	return verify(r, sessionSecret)
}

// VerifyInternalToken authenticates a signed server-to-server request from
// the storage-operation subsystem and returns the calling service name.
func VerifyInternalToken(r *http.Request) (string, error) {
	return verify(r, internalSecret)
}

func verify(r *http.Request, secret []byte) (string, error) {
	authToken := r.Header.Get("Authorization")
	if authToken == "" {
		return "", fmt.Errorf("no authorization header")
	}
	raw := strings.TrimPrefix(authToken, "Bearer ")

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token has no subject")
	}

	return subject, nil
}

// SignToken mints a user-session token. Exposed for tests.
func SignToken(userGUID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userGUID,
	})
	return token.SignedString(sessionSecret)
}

// SignInternalToken mints a token for the internal API. Exposed for tests and
// for sibling services sharing this package.
func SignInternalToken(service string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": service,
	})
	return token.SignedString(internalSecret)
}
