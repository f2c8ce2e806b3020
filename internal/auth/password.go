package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinHashCost is the lowest accepted bcrypt work factor.
	MinHashCost = 10
	// DefaultHashCost is used when no work factor is configured.
	DefaultHashCost = 12
)

// HashPassword hashes a plaintext password using bcrypt with the given work
// factor. Costs below MinHashCost are rejected by configuration, not here.
func HashPassword(password string, cost int) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	if cost == 0 {
		cost = DefaultHashCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with the stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
