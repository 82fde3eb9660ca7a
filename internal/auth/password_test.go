package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestClampCost(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, bcrypt.DefaultCost},
		{-3, bcrypt.DefaultCost},
		{2, bcrypt.MinCost},
		{bcrypt.MinCost, bcrypt.MinCost},
		{12, 12},
		{bcrypt.MaxCost + 1, bcrypt.MaxCost},
	}
	for _, tt := range tests {
		if got := clampCost(tt.in); got != tt.want {
			t.Errorf("clampCost(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := NewPasswordHasher(bcrypt.MinCost).Cost(); got != bcrypt.MinCost {
		t.Errorf("Cost() = %d, want %d", got, bcrypt.MinCost)
	}
}

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if hash == "correct horse battery" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("Hash() did not produce a bcrypt hash: %q", hash)
	}

	ok, err := h.Verify(hash, "correct horse battery")
	if err != nil || !ok {
		t.Errorf("Verify(correct) = %v, %v; want true, nil", ok, err)
	}

	ok, err = h.Verify(hash, "wrong")
	if err != nil || ok {
		t.Errorf("Verify(wrong) = %v, %v; want false, nil", ok, err)
	}
}

func TestPasswordHasher_VerifyMalformedHash(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	if _, err := h.Verify("not-a-hash", "pw"); err == nil {
		t.Error("Verify() expected error for malformed hash")
	}
}

func TestPasswordHasher_HashTooLong(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	if _, err := h.Hash(strings.Repeat("a", MaxPasswordBytes+1)); err == nil {
		t.Error("Hash() expected error for over-long password")
	}
}

func TestPasswordHasher_VerifyDummy(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	if len(h.dummyHash) == 0 {
		t.Fatal("dummy hash not initialised")
	}
	h.VerifyDummy("anything")
}
