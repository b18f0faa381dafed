package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"teed-waitlist/internal/common/errors"
)

// Claims matches the access tokens issued by the hosted auth backend: the
// subject is the user id and operator status may be carried in app_metadata.
type Claims struct {
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	AppMetadata struct {
		Roles []string `json:"roles,omitempty"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 access tokens signed with a shared secret.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewJWTVerifier(secret, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.NewAuthenticationError(fmt.Sprintf("failed to parse token: %v", err))
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.NewAuthenticationError("invalid or expired token")
	}
	if claims.Subject == "" {
		return nil, errors.NewAuthenticationError("token has no subject")
	}

	roles := append([]string(nil), claims.AppMetadata.Roles...)
	if claims.Role != "" {
		roles = append(roles, claims.Role)
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email, Roles: roles}, nil
}
