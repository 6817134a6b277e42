package security

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndMatch(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("482913")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "482913" {
		t.Fatal("Hash returned the plaintext")
	}
	ok, err := h.Matches(hash, "482913")
	if err != nil || !ok {
		t.Fatalf("Matches(correct) = %v, %v", ok, err)
	}
	ok, err = h.Matches(hash, "482914")
	if err != nil || ok {
		t.Fatalf("Matches(wrong) = %v, %v", ok, err)
	}
}

func TestHasher_MalformedHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	if _, err := h.Matches("not-a-bcrypt-hash", "123456"); err == nil {
		t.Fatal("Matches with malformed hash should error")
	}
}

func TestHasher_Cost(t *testing.T) {
	tests := []struct{ in, want int }{
		{12, 12},
		{0, bcrypt.DefaultCost},
		{2, bcrypt.MinCost},
		{40, bcrypt.MaxCost},
	}
	for _, tt := range tests {
		if got := NewHasher(tt.in).Cost; got != tt.want {
			t.Errorf("NewHasher(%d).Cost = %d, want %d", tt.in, got, tt.want)
		}
	}
}
