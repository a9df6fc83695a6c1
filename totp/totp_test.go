package totp

import (
	"testing"
	"time"

	"github.com/pquerna/otp"
	ptotp "github.com/pquerna/otp/totp"
)

const testSeed = "JBSWY3DPEHPK3PXP"

func codeAt(t *testing.T, at time.Time) string {
	t.Helper()
	code, err := ptotp.GenerateCodeCustom(testSeed, at.UTC(), ptotp.ValidateOpts{
		Period:    Period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	return code
}

func TestValidate_CurrentStep(t *testing.T) {
	now := time.Now()
	if !Validate(codeAt(t, now), testSeed, now) {
		t.Error("current-step code should validate")
	}
}

func TestValidate_ClockDriftWithinSkew(t *testing.T) {
	now := time.Now()
	for _, drift := range []time.Duration{-60 * time.Second, 60 * time.Second} {
		if !Validate(codeAt(t, now.Add(drift)), testSeed, now) {
			t.Errorf("code generated at drift %v should validate within skew", drift)
		}
	}
}

func TestValidate_DriftBeyondSkew(t *testing.T) {
	now := time.Now()
	// 5 steps away is outside the ±2 step tolerance.
	stale := codeAt(t, now.Add(-5*Period*time.Second))
	if Validate(stale, testSeed, now) {
		t.Error("code 5 steps old should not validate")
	}
}

func TestValidate_Garbage(t *testing.T) {
	now := time.Now()
	for _, code := range []string{"", "abc", "12345", "1234567", "000000"} {
		if Validate(code, testSeed, now) {
			t.Errorf("code %q should not validate", code)
		}
	}
}

func TestValidate_BadSeed(t *testing.T) {
	now := time.Now()
	if Validate(codeAt(t, now), "not-base32!!", now) {
		t.Error("invalid seed should never validate")
	}
}
