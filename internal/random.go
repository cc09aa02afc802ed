package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ChallengeID is the opaque temporary token keying a pending
// verification. It is never the account id, so that challenge tokens
// cannot be used to enumerate accounts.
type ChallengeID [16]byte

func NewChallengeID() (ChallengeID, error) {
	var cid ChallengeID
	_, err := rand.Read(cid[:])
	return cid, err
}

func (c ChallengeID) Bytes() []byte {
	return c[:]
}

func (c ChallengeID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(c[:])
}

func ParseChallengeID(challengeID string) (ChallengeID, error) {
	var cid ChallengeID

	raw, err := base64.RawURLEncoding.DecodeString(challengeID)
	if err != nil {
		return cid, err
	}
	if len(raw) != len(cid) {
		return cid, errors.New("invalid challenge id size")
	}

	copy(cid[:], raw)
	return cid, nil
}

func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// MaskEmail hides the bulk of the local part so a denial or step-up
// response can tell the user where the code went without leaking the
// full address.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}

	local := email[:at]
	domain := email[at:]

	if len(local) <= 2 {
		return local[:1] + "***" + domain
	}
	return local[:2] + "***" + domain
}
