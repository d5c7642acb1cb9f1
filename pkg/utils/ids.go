package utils

import (
	"fmt"
	"sync/atomic"
	"time"
)

var idSeq uint64

// GenID generates a unique identifier "<prefix>-<unix-nano>-<seq>". The
// atomic sequence keeps ids unique even within one nanosecond tick.
func GenID(prefix string) string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("%s-%d-%d", prefix, n, s)
}
