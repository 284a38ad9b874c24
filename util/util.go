package util

import (
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Debug is the DPrintf verbosity threshold; messages at a level above it
// are dropped.
var Debug uint64 = 0

// SetLevel sets the DPrintf threshold. Any level above zero also enables
// logrus debug output so that the messages are actually emitted.
func SetLevel(level uint64) {
	atomic.StoreUint64(&Debug, level)
	if level > 0 {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// DPrintf logs at level if the threshold allows it. logrus terminates each
// entry itself, so a trailing newline in format is dropped.
func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= atomic.LoadUint64(&Debug) {
		format = strings.TrimSuffix(format, "\n")
		if level == 0 {
			log.Infof(format, a...)
		} else {
			log.Debugf(format, a...)
		}
	}
}

func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Max(n uint64, m uint64) uint64 {
	if n > m {
		return n
	}
	return m
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

// SumOverflows reports whether a+b wraps around.
func SumOverflows(a uint64, b uint64) bool {
	return a+b < a
}

func CloneByteSlice(s []byte) []byte {
	s2 := make([]byte, len(s))
	copy(s2, s)
	return s2
}
