package gate

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the cookie carrying an issued access credential.
const CookieName = "auth_token"

const credentialIssuer = "paygate"

// IssueCredential mints a signed HS256 credential valid for ttl.
func IssueCredential(secret, subdomain string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": credentialIssuer,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if subdomain != "" {
		claims["sub"] = subdomain
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

// HasValidCredential reports whether the request carries a credential cookie
// that parses, is signed with secret and has not expired. Any failure counts
// as no credential.
func HasValidCredential(r *http.Request, secret string) bool {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return false
	}
	return verifyCredential(c.Value, secret)
}

func verifyCredential(tokenString, secret string) bool {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	return err == nil && token.Valid
}

// CredentialCookie builds the Set-Cookie for a freshly issued credential.
func CredentialCookie(token string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}
