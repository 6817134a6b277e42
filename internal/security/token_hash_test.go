package security

import (
	"testing"
)

func TestHashToken(t *testing.T) {
	a := HashToken("link-token-1")
	if a != HashToken("link-token-1") {
		t.Error("HashToken not deterministic")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64", len(a))
	}
	if a == HashToken("link-token-2") {
		t.Error("distinct tokens share a hash")
	}
}

func TestTokenHashEqual(t *testing.T) {
	stored := HashToken("link-token")
	tests := []struct {
		name  string
		token string
		hash  string
		want  bool
	}{
		{"match", "link-token", stored, true},
		{"wrong token", "other-token", stored, false},
		{"longer hash", "link-token", "a" + stored, false},
		{"same length different content", "link-token", "0" + stored[1:], stored[0] == '0'},
		{"empty token", "", HashToken(""), false},
		{"both empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokenHashEqual(tt.token, tt.hash); got != tt.want {
				t.Errorf("TokenHashEqual = %v, want %v", got, tt.want)
			}
		})
	}
}
