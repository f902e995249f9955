package course

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

const (
	joinCodeLen     = 8
	joinCodeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var joinCodeBase = big.NewInt(int64(len(joinCodeLetters)))

// generateJoinCode returns a uniformly random string of 8 uppercase
// ASCII letters. rand failing means the platform entropy source is
// broken; that error propagates.
func generateJoinCode() (string, error) {
	code := make([]byte, joinCodeLen)
	for i := range code {
		n, err := rand.Int(rand.Reader, joinCodeBase)
		if err != nil {
			return "", errors.Wrap(err, "generating join code")
		}
		code[i] = joinCodeLetters[n.Int64()]
	}
	return string(code), nil
}
