package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	errUnrecognizedToken = errors.New("unrecognized token")
)

// TokenOptions configures minting and verifying of HS256 bearer tokens.
type TokenOptions struct {
	Exp    time.Duration
	Secret []byte
}

type UserClaims struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewUserClaims(userID int, username string, exp time.Time) *UserClaims {
	return &UserClaims{
		userID,
		username,
		jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "linkfeed",
		},
	}
}

// SignToken mints a signed bearer token for the user.
func SignToken(userID int, username string, options TokenOptions) (signed string, exp time.Time, err error) {
	exp = time.Now().Add(options.Exp)
	claims := NewUserClaims(userID, username, exp)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err = token.SignedString(options.Secret)
	return signed, exp, err
}

// VerifyToken checks the signature and expiry and returns the claims.
func VerifyToken(token string, options TokenOptions) (*UserClaims, error) {
	claims := &UserClaims{}

	_token, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return options.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	switch {
	case _token != nil && _token.Valid:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, errUnrecognizedToken
	}
}

// InspectToken decodes the claims without verifying the signature. The
// client does not hold the signing secret; it only needs the expiry and the
// identity baked into its own token.
func InspectToken(token string) (*UserClaims, error) {
	claims := &UserClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Expired reports whether the token's expiry has passed. Undecodable tokens
// count as expired.
func Expired(token string) bool {
	claims, err := InspectToken(token)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}
