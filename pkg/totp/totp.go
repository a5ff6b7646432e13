// Package totp validates time-based one-time codes with bounded clock-skew
// tolerance and single-use enforcement.
package totp

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	ErrInvalidCode  = errors.New("invalid totp code")
	ErrCodeReplayed = errors.New("totp code already used")
	ErrEmptySecret  = errors.New("totp secret cannot be empty")
)

const (
	// DefaultStep is the TOTP time step
	DefaultStep = 30 * time.Second
	// DefaultSkew is how many steps either side of now are accepted
	DefaultSkew = 1
)

// Validator validates TOTP codes. A code accepted for an operator at step S
// permanently invalidates S and every earlier step for that operator, so a
// replayed code never validates twice even inside its skew window.
type Validator struct {
	step   time.Duration
	skew   int
	digits otp.Digits

	mu sync.Mutex
	// highest accepted step index per operator
	accepted map[string]int64
}

// NewValidator creates a validator. Zero step selects DefaultStep; negative
// skew selects DefaultSkew.
func NewValidator(step time.Duration, skew int) *Validator {
	if step <= 0 {
		step = DefaultStep
	}
	if skew < 0 {
		skew = DefaultSkew
	}
	return &Validator{
		step:     step,
		skew:     skew,
		digits:   otp.DigitsSix,
		accepted: make(map[string]int64),
	}
}

// Validate checks a code for an operator at the given time. The check fails
// closed: any error deriving candidate codes rejects the attempt.
func (v *Validator) Validate(operatorID, secret, code string, at time.Time) error {
	if secret == "" {
		return ErrEmptySecret
	}
	if code == "" {
		return ErrInvalidCode
	}

	baseStep := at.Unix() / int64(v.step/time.Second)

	matchedStep := int64(-1)
	for offset := -v.skew; offset <= v.skew; offset++ {
		stepIndex := baseStep + int64(offset)
		stepTime := time.Unix(stepIndex*int64(v.step/time.Second), 0)

		expected, err := totp.GenerateCodeCustom(secret, stepTime, totp.ValidateOpts{
			Period:    uint(v.step / time.Second),
			Digits:    v.digits,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil {
			return ErrInvalidCode
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			matchedStep = stepIndex
			break
		}
	}

	if matchedStep < 0 {
		return ErrInvalidCode
	}

	// Atomic check-and-set: concurrent attempts with the same code must not
	// both pass.
	v.mu.Lock()
	defer v.mu.Unlock()

	if high, ok := v.accepted[operatorID]; ok && matchedStep <= high {
		return ErrCodeReplayed
	}
	v.accepted[operatorID] = matchedStep

	return nil
}

// Step returns the configured time step
func (v *Validator) Step() time.Duration {
	return v.step
}

// GenerateCode produces the code for a secret at a point in time. Used by
// provisioning tooling and tests.
func (v *Validator) GenerateCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    uint(v.step / time.Second),
		Digits:    v.digits,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// GenerateSecret mints a new base32 TOTP secret for operator provisioning
func GenerateSecret(issuer, accountName string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}
