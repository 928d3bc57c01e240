package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// HashCode hashes an unlock code.
func HashCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing unlock code: %w", err)
	}
	return string(hash), nil
}

// CheckCode reports whether code matches hash.
func CheckCode(hash, code string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
	return err == nil
}

// dummyHash is compared against when the user does not exist, so unknown
// names take as long as wrong codes.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("contagem-dummy"), bcrypt.DefaultCost)

// CheckCodeTimed is CheckCode for a possibly missing user.
func CheckCodeTimed(hash *string, code string) bool {
	if hash == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(code))
		return false
	}
	return CheckCode(*hash, code)
}

// GenerateCode returns a random numeric unlock code of n digits.
func GenerateCode(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("code length must be positive")
	}
	buf := make([]byte, n)
	for i := range buf {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generating unlock code: %w", err)
		}
		buf[i] = byte('0' + d.Int64())
	}
	return string(buf), nil
}
