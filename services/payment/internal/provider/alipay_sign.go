package provider

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Подпись RSA2 (SHA256withRSA) совпадает с алгоритмом RS256, поэтому
// подписываем и проверяем через jwt.SigningMethodRS256.

// signContent собирает строку для подписи: параметры по алфавиту, "k=v" через "&",
// без пустых значений и без исключённых ключей.
func signContent(params url.Values, exclude ...string) string {
	skip := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		skip[k] = true
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if skip[k] || params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params.Get(k))
	}
	return b.String()
}

func rsa2Sign(content string, key *rsa.PrivateKey) (string, error) {
	sig, err := jwt.SigningMethodRS256.Sign(content, key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func rsa2Verify(content, signature string, key *rsa.PublicKey) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := jwt.SigningMethodRS256.Verify(content, sig, key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// ParsePrivateKey принимает PEM (PKCS#1 или PKCS#8) или base64 без заголовков,
// как ключи выдаёт кабинет Alipay.
func ParsePrivateKey(s string) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(toPEM(s, "PRIVATE KEY")))
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора приватного ключа: %w", err)
	}
	return key, nil
}

// ParsePublicKey принимает PEM или base64 без заголовков.
func ParsePublicKey(s string) (*rsa.PublicKey, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(toPEM(s, "PUBLIC KEY")))
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора публичного ключа: %w", err)
	}
	return key, nil
}

func toPEM(s, blockType string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-----BEGIN") {
		return s
	}

	var b strings.Builder
	b.WriteString("-----BEGIN " + blockType + "-----\n")
	for len(s) > 64 {
		b.WriteString(s[:64] + "\n")
		s = s[64:]
	}
	b.WriteString(s + "\n")
	b.WriteString("-----END " + blockType + "-----\n")
	return b.String()
}
