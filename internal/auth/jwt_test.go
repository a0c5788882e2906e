package auth

import (
	"testing"
	"time"
)

func newTestManager(expiry time.Duration) *JWTManager {
	return NewJWTManager("test-secret-do-not-use", expiry, "campbase-test")
}

func TestGenerateAndValidate(t *testing.T) {
	m := newTestManager(time.Hour)

	token, err := m.Generate("admin", "admin")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "admin" || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	m := newTestManager(-time.Minute)

	token, err := m.Generate("admin", "admin")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := m.Validate(token); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := newTestManager(time.Hour).Generate("admin", "admin")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	other := NewJWTManager("different-secret", time.Hour, "campbase-test")
	if _, err := other.Validate(token); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestGenerateRequiresSubjectAndRole(t *testing.T) {
	m := newTestManager(time.Hour)
	if _, err := m.Generate("", "admin"); err == nil {
		t.Error("empty subject accepted")
	}
	if _, err := m.Generate("admin", ""); err == nil {
		t.Error("empty role accepted")
	}
}

func TestPrincipalFromToken(t *testing.T) {
	m := newTestManager(time.Hour)
	token, _ := m.Generate("somadmin", "admin")

	principal, err := m.PrincipalFromToken(token)
	if err != nil {
		t.Fatalf("PrincipalFromToken: %v", err)
	}
	if principal.Username != "somadmin" || !principal.IsAdmin() {
		t.Errorf("principal = %+v", principal)
	}
}

func TestTokenFromHeader(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", false},
		{"bearer abc", "abc", false},
		{"Basic dXNlcg==", "", true},
		{"", "", true},
		{"Bearer", "", true},
	}
	for _, tc := range cases {
		got, err := TokenFromHeader(tc.header)
		if tc.wantErr && err == nil {
			t.Errorf("header %q: expected error", tc.header)
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("header %q: got %q, want %q", tc.header, got, tc.want)
		}
	}
}
