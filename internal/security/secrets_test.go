package security

import (
	"encoding/hex"
	"testing"
)

func TestGenerateSecret_LengthAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := GenerateSecret()
		if err != nil {
			t.Fatalf("GenerateSecret: %v", err)
		}
		if len(s) != SecretBytes*2 {
			t.Fatalf("len = %d, want %d", len(s), SecretBytes*2)
		}
		if _, err := hex.DecodeString(s); err != nil {
			t.Fatalf("secret is not hex: %v", err)
		}
		if seen[s] {
			t.Fatalf("duplicate secret %q", s)
		}
		seen[s] = true
	}
}

func TestHashSecret_Consistent(t *testing.T) {
	a := HashSecret("abc")
	b := HashSecret("abc")
	if a != b {
		t.Errorf("HashSecret not deterministic: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d, want 64", len(a))
	}
	if a == "abc" {
		t.Error("HashSecret returned the input")
	}
	if HashSecret("abd") == a {
		t.Error("different secrets produced the same digest")
	}
}

func TestSecretHashEqual(t *testing.T) {
	secret, _ := GenerateSecret()
	stored := HashSecret(secret)

	if !SecretHashEqual(secret, stored) {
		t.Error("matching secret should compare equal")
	}
	other, _ := GenerateSecret()
	if SecretHashEqual(other, stored) {
		t.Error("different secret should not compare equal")
	}
	if SecretHashEqual(stored, stored) {
		t.Error("digest itself must not be accepted as the secret")
	}
	if SecretHashEqual("", "") {
		t.Error("empty stored hash should never match")
	}
	if SecretHashEqual(secret, stored[:10]) {
		t.Error("truncated stored hash should not match")
	}
}
