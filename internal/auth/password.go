package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

type Algorithm string

const (
	AlgorithmBcrypt   Algorithm = "bcrypt"
	AlgorithmArgon2id Algorithm = "argon2id"
)

const argon2Prefix = "$argon2id$"

// MaxPasswordBytes is the bcrypt input limit, applied to every algorithm so hashes stay interchangeable.
const MaxPasswordBytes = 72

var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// Hasher turns plaintext secrets into salted one-way hashes and checks them back.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type HasherConfig struct {
	Algorithm     Algorithm `mapstructure:"algorithm"`
	BcryptCost    int       `mapstructure:"bcrypt_cost"`
	Argon2Time    uint32    `mapstructure:"argon2_time"`
	Argon2Memory  uint32    `mapstructure:"argon2_memory"`
	Argon2Threads uint8     `mapstructure:"argon2_threads"`
}

func (c *HasherConfig) applyDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = AlgorithmBcrypt
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.Argon2Time == 0 {
		c.Argon2Time = 1
	}
	if c.Argon2Memory == 0 {
		c.Argon2Memory = 64 * 1024
	}
	if c.Argon2Threads == 0 {
		c.Argon2Threads = 4
	}
}

type hasher struct {
	cfg HasherConfig
}

func NewHasher(cfg HasherConfig) (Hasher, error) {
	cfg.applyDefaults()
	switch cfg.Algorithm {
	case AlgorithmBcrypt, AlgorithmArgon2id:
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", cfg.Algorithm)
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cfg.BcryptCost)
	}
	return &hasher{cfg: cfg}, nil
}

func (h *hasher) Hash(plain string) (string, error) {
	if len(plain) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if h.cfg.Algorithm == AlgorithmArgon2id {
		return h.hashArgon2(plain)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(b), nil
}

// Verify accepts both encodings so existing hashes survive an algorithm switch.
func (h *hasher) Verify(plain, hash string) bool {
	if strings.HasPrefix(hash, argon2Prefix) {
		return verifyArgon2(plain, hash) == nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func (h *hasher) hashArgon2(plain string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2 salt: %w", err)
	}
	key := argon2.IDKey([]byte(plain), salt, h.cfg.Argon2Time, h.cfg.Argon2Memory, h.cfg.Argon2Threads, 32)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		h.cfg.Argon2Memory, h.cfg.Argon2Time, h.cfg.Argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyArgon2(plain, encoded string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return errors.New("argon2: bad hash format")
	}
	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return fmt.Errorf("argon2: params: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("argon2: salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("argon2: hash: %w", err)
	}
	got := argon2.IDKey([]byte(plain), salt, iterations, memory, threads, uint32(len(want)))
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return errors.New("argon2: mismatch")
	}
	return nil
}
