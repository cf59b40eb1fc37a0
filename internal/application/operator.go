package application

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Errors reported while reading a stored operator code hash.
var (
	// ErrInvalidCodeHash marks a hash that is not a usable argon2id PHC string.
	ErrInvalidCodeHash = errors.New("invalid operator code hash format")
	// ErrIncompatibleCodeVersion marks a hash produced by another argon2 version.
	ErrIncompatibleCodeVersion = errors.New("incompatible operator code hash version")
)

// Argon2idParams are the argon2id cost settings encoded in an operator code
// hash. Memory is expressed in KiB.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams is the cost used for newly hashed operator codes.
var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// validate rejects settings argon2 cannot run with. argon2.IDKey panics on
// zero iterations or parallelism.
func (p Argon2idParams) validate() error {
	switch {
	case p.Iterations < 1:
		return fmt.Errorf("%w: iterations must be at least 1", ErrInvalidCodeHash)
	case p.Parallelism < 1:
		return fmt.Errorf("%w: parallelism must be at least 1", ErrInvalidCodeHash)
	case p.Memory < 8*uint32(p.Parallelism):
		return fmt.Errorf("%w: memory must be at least 8 KiB per lane", ErrInvalidCodeHash)
	case p.SaltLength < 1:
		return fmt.Errorf("%w: salt is empty", ErrInvalidCodeHash)
	case p.KeyLength < 1:
		return fmt.Errorf("%w: key is empty", ErrInvalidCodeHash)
	}
	return nil
}

// HashOperatorCode derives an argon2id hash of the console operator code in
// the PHC string format.
func HashOperatorCode(code string, params Argon2idParams) (string, error) {
	if err := params.validate(); err != nil {
		return "", err
	}
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(code), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	// $argon2id$v=19$m=...,t=...,p=...$salt$key
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

type operatorCodeHash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func parseOperatorCodeHash(hashed string) (operatorCodeHash, error) {
	parts := strings.Split(hashed, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return operatorCodeHash{}, ErrInvalidCodeHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return operatorCodeHash{}, fmt.Errorf("%w: %v", ErrInvalidCodeHash, err)
	}
	if version != argon2.Version {
		return operatorCodeHash{}, ErrIncompatibleCodeVersion
	}

	var h operatorCodeHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Iterations, &h.params.Parallelism); err != nil {
		return operatorCodeHash{}, fmt.Errorf("%w: %v", ErrInvalidCodeHash, err)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return operatorCodeHash{}, fmt.Errorf("%w: %v", ErrInvalidCodeHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return operatorCodeHash{}, fmt.Errorf("%w: %v", ErrInvalidCodeHash, err)
	}
	h.params.SaltLength = uint32(len(h.salt))
	h.params.KeyLength = uint32(len(h.key))
	if err := h.params.validate(); err != nil {
		return operatorCodeHash{}, err
	}
	return h, nil
}

// ValidateOperatorCodeHash reports whether hashed can be used to verify codes
// without checking any code against it.
func ValidateOperatorCodeHash(hashed string) error {
	_, err := parseOperatorCodeHash(hashed)
	return err
}

// VerifyOperatorCode checks a candidate code against a stored hash. A wrong
// code yields ErrUnauthorized; a malformed hash yields ErrInvalidCodeHash.
func VerifyOperatorCode(hashed, code string) error {
	h, err := parseOperatorCodeHash(hashed)
	if err != nil {
		return err
	}

	candidate := argon2.IDKey([]byte(code), h.salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	if subtle.ConstantTimeCompare(h.key, candidate) == 1 {
		return nil
	}
	return ErrUnauthorized
}

// CodeVerifier compares a stored hash with a candidate operator code.
type CodeVerifier func(hashed, code string) error

// OperatorGate guards mutating console commands behind the operator code.
// A gate without a hash is open.
type OperatorGate struct {
	hash   string
	verify CodeVerifier
	logger *slog.Logger
}

// NewOperatorGate constructs a gate for the given hash.
func NewOperatorGate(hash string, verify CodeVerifier, logger *slog.Logger) *OperatorGate {
	if verify == nil {
		verify = VerifyOperatorCode
	}
	return &OperatorGate{hash: strings.TrimSpace(hash), verify: verify, logger: defaultLogger(logger)}
}

// Enabled reports whether a code is required.
func (g *OperatorGate) Enabled() bool {
	return g != nil && g.hash != ""
}

// Authorize returns the operator principal when the code matches.
func (g *OperatorGate) Authorize(ctx context.Context, label, code string) (principal Principal, err error) {
	principal = Principal{Label: label, Role: RoleOperator}
	if !g.Enabled() {
		return principal, nil
	}

	logger := serviceLogger(ctx, g.logger, "OperatorGate", "Authorize", "operator", label)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "operator code rejected", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if strings.TrimSpace(code) == "" {
		return Principal{}, ErrUnauthorized
	}
	if err = g.verify(g.hash, code); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return Principal{}, err
		}
		return Principal{}, fmt.Errorf("verify operator code: %w", err)
	}
	return principal, nil
}
