package client

import (
	"crypto/rand"
	"fmt"
)

const uidAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// GenerateUID выдает идентификатор пользователя вида XXXX-XXXX-XXXX
// из алфавита Крокфорда (без I, L, O, U).
func GenerateUID() (string, error) {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to generate uid: %w", err)
	}

	out := make([]byte, 0, 14)
	for i, c := range b {
		if i > 0 && i%4 == 0 {
			out = append(out, '-')
		}
		out = append(out, uidAlphabet[int(c)%len(uidAlphabet)])
	}
	return string(out), nil
}
