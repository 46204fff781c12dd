package reimbursement

import (
	"crypto/rand"
	"math/big"

	"github.com/frahmantamala/bookkeeping/internal/core/common/validation"
)

const (
	trackingPrefix   = "RB-"
	trackingAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	trackingLength   = 6
)

// NewTrackingCode draws RB- plus six characters from crypto/rand.
func NewTrackingCode() (string, error) {
	max := big.NewInt(int64(len(trackingAlphabet)))
	buf := make([]byte, trackingLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = trackingAlphabet[n.Int64()]
	}
	return trackingPrefix + string(buf), nil
}

func ValidTrackingCode(code string) bool {
	return validation.TrackingCodePattern.MatchString(code)
}
