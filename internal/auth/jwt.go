package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/feedgate/feedgate/internal/domain"
)

// JWT signs and validates HS256 bearer tokens. It implements
// Authenticator for incoming requests and issues tokens at login.
type JWT struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret   string        // HMAC secret, required
	Issuer   string        // Optional issuer claim and validation
	TokenTTL time.Duration // Token lifetime, default 24h
}

// NewJWT creates the token signer/validator.
func NewJWT(cfg JWTConfig) (*JWT, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &JWT{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		tokenTTL: cfg.TokenTTL,
	}, nil
}

// Sign issues a token for the given user.
func (j *JWT) Sign(u *domain.User) (string, error) {
	now := time.Now()
	claims := map[string]any{
		"sub":    u.ID,
		"email":  u.Email,
		"name":   u.Name,
		"role":   string(u.Role),
		"status": string(u.Status),
		"iat":    now.Unix(),
		"exp":    now.Add(j.tokenTTL).Unix(),
	}
	if j.issuer != "" {
		claims["iss"] = j.issuer
	}

	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	signingInput := base64URLEncode(headerJSON) + "." + base64URLEncode(payloadJSON)
	mac := hmac.New(sha256.New, j.secret)
	mac.Write([]byte(signingInput))
	return signingInput + "." + base64URLEncode(mac.Sum(nil)), nil
}

// Authenticate implements Authenticator.
func (j *JWT) Authenticate(r *http.Request) *Identity {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil
	}

	claims, err := j.validate(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		return nil
	}

	id := &Identity{}
	if sub, ok := claims["sub"].(string); ok {
		id.UserID = sub
	}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		id.Name = name
	}
	if role, ok := claims["role"].(string); ok {
		id.Role = domain.Role(role)
	}
	if status, ok := claims["status"].(string); ok {
		id.Status = domain.UserStatus(status)
	}
	if id.UserID == "" {
		return nil
	}
	return id
}

// validate parses the token and verifies signature, expiry, and issuer.
func (j *JWT) validate(tokenStr string) (map[string]any, error) {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid token format")
	}
	headerB64, payloadB64, signatureB64 := parts[0], parts[1], parts[2]

	headerBytes, err := base64URLDecode(headerB64)
	if err != nil {
		return nil, fmt.Errorf("invalid header encoding")
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("invalid header")
	}
	if header.Alg != "HS256" {
		return nil, fmt.Errorf("unsupported algorithm: %s", header.Alg)
	}

	signature, err := base64URLDecode(signatureB64)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding")
	}
	mac := hmac.New(sha256.New, j.secret)
	mac.Write([]byte(headerB64 + "." + payloadB64))
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return nil, fmt.Errorf("signature mismatch")
	}

	payloadBytes, err := base64URLDecode(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("invalid payload encoding")
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, fmt.Errorf("invalid claims")
	}

	if exp, ok := claims["exp"].(float64); ok {
		if time.Now().Unix() >= int64(exp) {
			return nil, fmt.Errorf("token expired")
		}
	}
	if j.issuer != "" {
		if iss, _ := claims["iss"].(string); iss != j.issuer {
			return nil, fmt.Errorf("issuer mismatch")
		}
	}
	return claims, nil
}

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
