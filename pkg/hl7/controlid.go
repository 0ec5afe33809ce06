package hl7

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const controlIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateControlID returns a 20 character message control id: the current
// UTC time as YYDDDHHMMSSffffff with the first digit dropped, followed by
// four distinct random alphanumerics.
func GenerateControlID() string {
	return controlIDAt(time.Now().UTC())
}

func controlIDAt(t time.Time) string {
	stamp := fmt.Sprintf("%s%03d%s%06d", t.Format("06"), t.YearDay(), t.Format("150405"), t.Nanosecond()/1000)
	suffix := make([]byte, 0, 4)
	for _, i := range rand.Perm(len(controlIDAlphabet))[:4] {
		suffix = append(suffix, controlIDAlphabet[i])
	}
	return stamp[1:] + string(suffix)
}
