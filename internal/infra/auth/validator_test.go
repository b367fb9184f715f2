package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xela07ax/examguard/internal/domain"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

func signedToken(t *testing.T, key *rsa.PrivateKey, expiresAt time.Time) string {
	t.Helper()
	claims := &domain.CustomClaims{
		UserID: "user-42",
		Scopes: map[string]bool{"admin": true},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "examguard-console",
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestVerifyTokenRoundTrip(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	v := NewBaseValidator(&key.PublicKey)
	token := signedToken(t, key, time.Now().Add(time.Hour))

	// Заголовок приходит как есть, с префиксом схемы
	claims, err := v.VerifyToken("Bearer " + token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.UserID != "user-42" || !claims.Scopes["admin"] {
		t.Errorf("claims = %+v", claims)
	}

	// Голый токен без префикса тоже валиден
	if _, err := v.VerifyToken(token); err != nil {
		t.Errorf("bare token rejected: %v", err)
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	v := NewBaseValidator(&key.PublicKey)
	token := signedToken(t, key, time.Now().Add(-time.Minute))

	if _, err := v.VerifyToken(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestVerifyTokenWrongKey(t *testing.T) {
	t.Parallel()
	signer := testKey(t)
	other := testKey(t)
	v := NewBaseValidator(&other.PublicKey)

	if _, err := v.VerifyToken(signedToken(t, signer, time.Now().Add(time.Hour))); err == nil {
		t.Fatal("token signed by another key accepted")
	}
}

func TestVerifyTokenRejectsHMAC(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	v := NewBaseValidator(&key.PublicKey)

	// Классическая атака подмены алгоритма: HS256 с публичным ключом
	// в роли секрета. Валидатор обязан резать по типу метода подписи.
	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user-42",
	}).SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign hmac token: %v", err)
	}

	_, err = v.VerifyToken(hmacToken)
	if err == nil {
		t.Fatal("HS256 token accepted by RS256 validator")
	}
	if !strings.Contains(err.Error(), "unexpected signing method") {
		t.Errorf("error = %v", err)
	}
}

func TestParseRSAKeysFromPEM(t *testing.T) {
	t.Parallel()
	key := testKey(t)

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	priv, err := ParseRSAPrivateKey(privPEM)
	if err != nil {
		t.Fatalf("ParseRSAPrivateKey: %v", err)
	}
	pub, err := ParseRSAPublicKey(pubPEM)
	if err != nil {
		t.Fatalf("ParseRSAPublicKey: %v", err)
	}

	// Распарсенная пара обязана работать в связке подпись-проверка
	token := signedToken(t, priv, time.Now().Add(time.Hour))
	if _, err := NewBaseValidator(pub).VerifyToken(token); err != nil {
		t.Errorf("parsed key pair failed round trip: %v", err)
	}
}

func TestParseRSAKeysEmptyInput(t *testing.T) {
	t.Parallel()
	if _, err := ParseRSAPrivateKey(nil); err == nil {
		t.Error("empty private key accepted")
	}
	if _, err := ParseRSAPublicKey(nil); err == nil {
		t.Error("empty public key accepted")
	}
}
