package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/internal/transport"
	"github.com/golang-jwt/jwt/v5"
)

// JWT authenticates the caller and stores the token subject as the user id.
// Browsers cannot set headers on a websocket upgrade, so the token may also
// arrive in the access_token query parameter.
func JWT(secret, issuer, audience string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := extractToken(r)
			if err != nil {
				transport.WriteError(r.Context(), w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			claims, err := verifyToken(tokenString, secret, issuer, audience)
			if err != nil {
				transport.WriteError(r.Context(), w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				transport.WriteError(r.Context(), w, http.StatusUnauthorized, "unauthorized", "invalid token claims")
				return
			}

			ctx := InjectUserID(r.Context(), sub)
			observability.GetLogger(ctx).Debug("jwt: token accepted")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if q := r.URL.Query().Get("access_token"); q != "" {
			return q, nil
		}
		return "", fmt.Errorf("missing token")
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", fmt.Errorf("invalid token format")
	}

	return parts[1], nil
}

func verifyToken(tokenString, secret, issuer, audience string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
