package encryption

import (
	"errors"
	"strings"
	"testing"
)

const testSecret = "0123456789abcdef-test-secret"

func TestXChaCha_RoundTrip(t *testing.T) {
	s, err := NewXChaCha(testSecret)
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name      string
		plaintext string
	}{
		{"Simple text", "Hello, World!"},
		{"Unicode", "你好世界！🔐"},
		{"Long text", strings.Repeat("This is a long message. ", 100)},
		{"Special chars", "!@#$%^&*()_+-=[]{}|;':\",./<>?"},
		{"Newlines", "Line 1\nLine 2\nLine 3"},
		{"Empty", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := s.Seal(tc.plaintext, "thread-1")
			if err != nil {
				t.Fatalf("加密失敗: %v", err)
			}
			if !IsSealed(sealed) {
				t.Fatalf("密文缺少前綴: %q", sealed)
			}
			if tc.plaintext != "" && strings.Contains(sealed, tc.plaintext) {
				t.Error("密文不應包含明文")
			}

			got, err := s.Open(sealed, "thread-1")
			if err != nil {
				t.Fatalf("解密失敗: %v", err)
			}
			if got != tc.plaintext {
				t.Errorf("解密結果 %q, 期望 %q", got, tc.plaintext)
			}
		})
	}
}

// 相同明文每次加密都使用不同的 nonce.
func TestXChaCha_NonceUniqueness(t *testing.T) {
	s, err := NewXChaCha(testSecret)
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool, 100)
	for i := 0; i < 100; i++ {
		sealed, err := s.Seal("test message", "")
		if err != nil {
			t.Fatalf("加密失敗: %v", err)
		}
		if seen[sealed] {
			t.Fatalf("第 %d 次加密產生重複密文", i)
		}
		seen[sealed] = true
	}
}

func TestXChaCha_Tampering(t *testing.T) {
	s, err := NewXChaCha(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := s.Seal("secret", "thread-1")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("associated data 不符", func(t *testing.T) {
		if _, err := s.Open(sealed, "thread-2"); !errors.Is(err, ErrDecrypt) {
			t.Errorf("期望 ErrDecrypt, 得到 %v", err)
		}
	})

	t.Run("金鑰不符", func(t *testing.T) {
		other, err := NewXChaCha("another-secret-value-123")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := other.Open(sealed, "thread-1"); !errors.Is(err, ErrDecrypt) {
			t.Errorf("期望 ErrDecrypt, 得到 %v", err)
		}
	})

	t.Run("截斷", func(t *testing.T) {
		if _, err := s.Open(Prefix+"AAAA", "thread-1"); !errors.Is(err, ErrDecrypt) {
			t.Errorf("期望 ErrDecrypt, 得到 %v", err)
		}
	})

	t.Run("非 base64", func(t *testing.T) {
		if _, err := s.Open(Prefix+"!!!", "thread-1"); err == nil {
			t.Error("期望錯誤")
		}
	})
}

func TestXChaCha_LegacyPlaintext(t *testing.T) {
	s, err := NewXChaCha(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Open("plain old message", "thread-1")
	if err != nil || got != "plain old message" {
		t.Errorf("Open() = %q, %v", got, err)
	}
}

func TestNewXChaCha_ShortKey(t *testing.T) {
	if _, err := NewXChaCha("short"); err == nil {
		t.Error("過短的金鑰應該失敗")
	}
}

func TestPlain(t *testing.T) {
	var p Plain
	got, err := p.Seal("hi", "t")
	if err != nil || got != "hi" {
		t.Errorf("Seal() = %q, %v", got, err)
	}
	if _, err := p.Open(Prefix+"xyz", "t"); err == nil {
		t.Error("停用加密時讀取密文應該失敗")
	}
}
