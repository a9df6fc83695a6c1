// Package totp validates time-based one-time-password tokens against the
// admin's configured seed: SHA1, 30-second step, 6 digits, with a tolerance
// of ±2 steps to absorb clock drift between the admin's device and the
// server. Codes are not single-use; replay within the tolerance window is a
// documented property of the scheme, not a supported guarantee.
package totp

import (
	"time"

	"github.com/pquerna/otp"
	ptotp "github.com/pquerna/otp/totp"
)

const (
	// Period is the time step in seconds.
	Period = 30
	// Skew is the tolerance in steps on either side of now.
	Skew = 2
)

// Validate reports whether code is a valid 6-digit token for the base32 seed
// at the given time. Malformed codes and seeds validate as false.
func Validate(code, seed string, at time.Time) bool {
	ok, err := ptotp.ValidateCustom(code, seed, at.UTC(), ptotp.ValidateOpts{
		Period:    Period,
		Skew:      Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
