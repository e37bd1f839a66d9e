package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

const base36Digits = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewConversationID returns an id of the form conv_<base36 millis>_<8 random base36>.
// Ids sort roughly by creation time and are unique with high probability.
func NewConversationID(now time.Time) string {
	return "conv_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + randomBase36(8)
}

// NewModelID returns an id of the form <millis>-<6 random base36>.
func NewModelID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + randomBase36(6)
}

// randomBase36 returns n random base36 characters. Bytes are taken from
// random UUIDs, skipping the version and variant bytes, which carry fixed bits.
func randomBase36(n int) string {
	out := make([]byte, 0, n)
	for len(out) < n {
		u := uuid.New()
		for i, b := range u {
			if i == 6 || i == 8 {
				continue
			}
			if len(out) == n {
				break
			}
			out = append(out, base36Digits[int(b)%len(base36Digits)])
		}
	}
	return string(out)
}
