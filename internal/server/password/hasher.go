// Package password hashes and verifies user passwords.
//
// Two encodings are understood regardless of the configured algorithm:
// bcrypt ($2a$, $2b$, $2y$) and argon2id in PHC form ($argon2id$...). The
// configured algorithm only decides how new hashes are produced and which
// stored hashes are reported as needing a rehash.
package password

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matthewhartstonge/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

var (
	ErrUnknownAlgorithm = errors.New("unknown password hash algorithm")
	ErrUnsupportedHash  = errors.New("unsupported password hash encoding")
	ErrTooLong          = errors.New("password too long")
)

// Hasher is consumed by the authentication engine.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}

// Config selects the algorithm for new hashes.
type Config struct {
	Algorithm  string
	BcryptCost int
}

// Service implements Hasher.
type Service struct {
	algorithm  string
	bcryptCost int
	argon      argon2.Config
}

// New validates cfg and returns a Service. A zero BcryptCost means
// bcrypt.DefaultCost.
func New(cfg Config) (*Service, error) {
	alg := strings.ToLower(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = AlgorithmBcrypt
	}
	if alg != AlgorithmBcrypt && alg != AlgorithmArgon2id {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
	}

	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	argon := argon2.DefaultConfig()
	argon.Mode = argon2.ModeArgon2id

	return &Service{algorithm: alg, bcryptCost: cost, argon: argon}, nil
}

func (s *Service) Algorithm() string { return s.algorithm }

func (s *Service) Hash(plain string) (string, error) {
	if s.algorithm == AlgorithmArgon2id {
		encoded, err := s.argon.HashEncoded([]byte(plain))
		if err != nil {
			return "", fmt.Errorf("argon2 hash: %w", err)
		}
		return string(encoded), nil
	}

	// bcrypt only reads the first 72 bytes
	if len(plain) > 72 {
		return "", ErrTooLong
	}
	encoded, err := bcrypt.GenerateFromPassword([]byte(plain), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(encoded), nil
}

// Verify reports whether plain matches encoded. A mismatch is (false, nil);
// an error means encoded could not be interpreted.
func (s *Service) Verify(plain, encoded string) (bool, error) {
	switch {
	case isBcrypt(encoded):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("bcrypt verify: %w", err)
	case isArgon2(encoded):
		ok, err := argon2.VerifyEncoded([]byte(plain), []byte(encoded))
		if err != nil {
			return false, fmt.Errorf("argon2 verify: %w", err)
		}
		return ok, nil
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsRehash reports whether encoded was produced by a different algorithm
// or with weaker parameters than the current configuration.
func (s *Service) NeedsRehash(encoded string) bool {
	switch s.algorithm {
	case AlgorithmBcrypt:
		if !isBcrypt(encoded) {
			return true
		}
		cost, err := bcrypt.Cost([]byte(encoded))
		return err != nil || cost < s.bcryptCost
	case AlgorithmArgon2id:
		if !isArgon2(encoded) {
			return true
		}
		raw, err := argon2.Decode([]byte(encoded))
		if err != nil {
			return true
		}
		c := raw.Config
		return c.Mode != argon2.ModeArgon2id ||
			c.MemoryCost < s.argon.MemoryCost ||
			c.TimeCost < s.argon.TimeCost ||
			c.Parallelism < s.argon.Parallelism ||
			c.HashLength != s.argon.HashLength
	}
	return false
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

func isArgon2(encoded string) bool {
	return strings.HasPrefix(encoded, "$argon2")
}
