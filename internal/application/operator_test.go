package application

import (
	"context"
	"errors"
	"strings"
	"testing"
)

var testArgon2idParams = Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func TestHashOperatorCode_Verify(t *testing.T) {
	t.Parallel()

	hashed, err := HashOperatorCode("campamento-2026", testArgon2idParams)
	if err != nil {
		t.Fatalf("HashOperatorCode returned error: %v", err)
	}
	if !strings.HasPrefix(hashed, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Fatalf("unexpected hash format %q", hashed)
	}

	if err := VerifyOperatorCode(hashed, "campamento-2026"); err != nil {
		t.Fatalf("expected matching code, got %v", err)
	}
	if err := VerifyOperatorCode(hashed, "campamento-2025"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong code, got %v", err)
	}

	again, err := HashOperatorCode("campamento-2026", testArgon2idParams)
	if err != nil {
		t.Fatalf("HashOperatorCode returned error: %v", err)
	}
	if again == hashed {
		t.Fatalf("expected a fresh salt per hash")
	}
}

func TestVerifyOperatorCode_Malformed(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		hash string
		want error
	}{
		"not phc":       {hash: "plain", want: ErrInvalidCodeHash},
		"wrong algo":    {hash: "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$a2V5", want: ErrInvalidCodeHash},
		"old version":   {hash: "$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$a2V5", want: ErrIncompatibleCodeVersion},
		"bad params":    {hash: "$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5", want: ErrInvalidCodeHash},
		"bad salt data": {hash: "$argon2id$v=19$m=1024,t=1,p=1$***$a2V5", want: ErrInvalidCodeHash},
		"zero lanes":    {hash: "$argon2id$v=19$m=65536,t=3,p=0$c2FsdHNhbHQ$a2V5a2V5", want: ErrInvalidCodeHash},
		"zero passes":   {hash: "$argon2id$v=19$m=65536,t=0,p=2$c2FsdHNhbHQ$a2V5a2V5", want: ErrInvalidCodeHash},
		"tiny memory":   {hash: "$argon2id$v=19$m=8,t=1,p=2$c2FsdHNhbHQ$a2V5a2V5", want: ErrInvalidCodeHash},
		"empty key":     {hash: "$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$", want: ErrInvalidCodeHash},
		"empty salt":    {hash: "$argon2id$v=19$m=1024,t=1,p=1$$a2V5a2V5", want: ErrInvalidCodeHash},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if err := VerifyOperatorCode(tc.hash, "code"); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if err := ValidateOperatorCodeHash(tc.hash); !errors.Is(err, tc.want) {
				t.Fatalf("ValidateOperatorCodeHash: expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOperatorGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("open gate admits any caller as operator", func(t *testing.T) {
		t.Parallel()
		gate := NewOperatorGate("  ", nil, discardLogger())
		if gate.Enabled() {
			t.Fatalf("expected gate without hash to be open")
		}
		principal, err := gate.Authorize(ctx, "desk-1", "")
		if err != nil {
			t.Fatalf("Authorize returned error: %v", err)
		}
		if principal.Role != RoleOperator || principal.Label != "desk-1" {
			t.Fatalf("unexpected principal %+v", principal)
		}
	})

	t.Run("enabled gate verifies the code", func(t *testing.T) {
		t.Parallel()
		var calls int
		verify := func(hashed, code string) error {
			calls++
			if hashed != "$argon2id$stub" {
				t.Fatalf("unexpected hash %q", hashed)
			}
			if code == "secret" {
				return nil
			}
			return ErrUnauthorized
		}
		gate := NewOperatorGate("$argon2id$stub", verify, discardLogger())

		if _, err := gate.Authorize(ctx, "desk-1", " "); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected blank code to be rejected, got %v", err)
		}
		if calls != 0 {
			t.Fatalf("blank code must not reach the verifier")
		}
		if _, err := gate.Authorize(ctx, "desk-1", "guess"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected wrong code to be rejected, got %v", err)
		}
		principal, err := gate.Authorize(ctx, "desk-1", "secret")
		if err != nil || principal.Role != RoleOperator {
			t.Fatalf("expected operator principal, got %+v, %v", principal, err)
		}
	})

	t.Run("malformed hash surfaces as a wrapped error", func(t *testing.T) {
		t.Parallel()
		gate := NewOperatorGate("broken", nil, discardLogger())
		_, err := gate.Authorize(ctx, "desk-1", "secret")
		if !errors.Is(err, ErrInvalidCodeHash) || errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected invalid hash error, got %v", err)
		}
	})

	t.Run("real hash round trip", func(t *testing.T) {
		t.Parallel()
		hashed, err := HashOperatorCode("1234", testArgon2idParams)
		if err != nil {
			t.Fatalf("HashOperatorCode returned error: %v", err)
		}
		gate := NewOperatorGate(hashed, nil, discardLogger())
		if _, err := gate.Authorize(ctx, "desk-2", "1234"); err != nil {
			t.Fatalf("expected code to verify, got %v", err)
		}
	})
}
