// README: Cosmetic ride numbers and generated transaction ids.
package ride

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NewRideNumber returns the category prefix followed by six random digits.
// Numbers are for display only and are not guaranteed unique.
func NewRideNumber(c Category) string {
	return c.RideNumberPrefix() + sixDigits()
}

// NewTransactionID mirrors the unverified "TXN" ids riders are shown after paying.
func NewTransactionID() string {
	return "TXN" + sixDigits()
}

func sixDigits() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "000000"
	}
	return fmt.Sprintf("%06d", n.Int64())
}
