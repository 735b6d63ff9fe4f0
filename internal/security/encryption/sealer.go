// Package encryption 提供訊息內容的靜態加密.
package encryption

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Prefix 已加密內容的前綴.
const Prefix = "xc20p1305:"

// 金鑰衍生用的 info, 變更會使既有密文無法解密.
const hkdfInfo = "simple-chat message content v1"

// MinSecretLength 設定金鑰的最短長度.
const MinSecretLength = 16

// ErrDecrypt 密文遭竄改或金鑰不符.
var ErrDecrypt = errors.New("encryption: message authentication failed")

// Sealer 加密與解密儲存內容.
type Sealer interface {
	Seal(plaintext, associated string) (string, error)
	Open(stored, associated string) (string, error)
}

// XChaCha XChaCha20-Poly1305 實作, nonce 隨機產生並放在密文前方.
//
// 格式: "xc20p1305:" + base64(nonce || ciphertext || tag)
type XChaCha struct {
	aead cipher.AEAD
}

// NewXChaCha 由設定的密鑰以 HKDF-SHA256 衍生 256-bit 金鑰.
func NewXChaCha(secret string) (*XChaCha, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("encryption key must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return &XChaCha{aead: aead}, nil
}

// Seal 加密 plaintext; associated 綁定到密文 (例如對話 ID), 解密時必須相同.
func (x *XChaCha) Seal(plaintext, associated string) (string, error) {
	nonce := make([]byte, x.aead.NonceSize(), x.aead.NonceSize()+len(plaintext)+x.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := x.aead.Seal(nonce, nonce, []byte(plaintext), []byte(associated))
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open 解密; 沒有前綴的舊資料原樣回傳.
func (x *XChaCha) Open(stored, associated string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, Prefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	ns := x.aead.NonceSize()
	if len(data) < ns+x.aead.Overhead() {
		return "", ErrDecrypt
	}

	plaintext, err := x.aead.Open(nil, data[:ns], data[ns:], []byte(associated))
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// IsSealed 判斷內容是否為加密格式.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, Prefix)
}

// Plain 不加密, 用於停用加密時.
type Plain struct{}

func (Plain) Seal(plaintext, _ string) (string, error) { return plaintext, nil }

// Open 無法解密已加密的內容.
func (Plain) Open(stored, _ string) (string, error) {
	if IsSealed(stored) {
		return "", errors.New("encryption: sealed content but encryption is disabled")
	}
	return stored, nil
}

var (
	_ Sealer = (*XChaCha)(nil)
	_ Sealer = Plain{}
)
