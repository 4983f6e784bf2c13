package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"unicode"
)

const otpLength = 6

// GenerateOTP produce un código numérico de 6 dígitos con crypto/rand.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func isValidOTPCode(code string) bool {
	if len(code) != otpLength {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
