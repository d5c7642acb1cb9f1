package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// Grammar shared with every peer: numbers look like phone numbers under the
// 0x0 prefix, pins are short lowercase hex strings.
var (
	numberRe = regexp.MustCompile(`^0x0-\d{3}-\d{4}-\d{4}$`)
	pinRe    = regexp.MustCompile(`^[0-9a-f]{4,16}$`)
)

// Limits holds the tunable validation bounds. Defaults match the wire
// protocol peers expect; config may lower MaxContentLen but raising it
// would break interop.
type Limits struct {
	MaxContentLen  int
	MaxLabelLen    int
	MaxFilenameLen int
}

var limits = Limits{MaxContentLen: 65536, MaxLabelLen: 100, MaxFilenameLen: 255}

// SetLimits overrides the active bounds. Zero fields keep their defaults.
func SetLimits(l Limits) {
	if l.MaxContentLen > 0 {
		limits.MaxContentLen = l.MaxContentLen
	}
	if l.MaxLabelLen > 0 {
		limits.MaxLabelLen = l.MaxLabelLen
	}
	if l.MaxFilenameLen > 0 {
		limits.MaxFilenameLen = l.MaxFilenameLen
	}
}

// PinValue validates the pin grammar: lowercase hex, 4-16 chars. Values are
// never coerced; a malformed value is the caller's error to surface.
func PinValue(v string) error {
	if !pinRe.MatchString(v) {
		return fmt.Errorf("invalid pin value %q: must match ^[0-9a-f]{4,16}$", v)
	}
	return nil
}

// Number validates the stable-number grammar.
func Number(v string) error {
	if !numberRe.MatchString(v) {
		return fmt.Errorf("invalid number %q: must match 0x0-NNN-NNNN-NNNN", v)
	}
	return nil
}

// Content validates a message body against the protocol size cap.
func Content(v string) error {
	if v == "" {
		return fmt.Errorf("empty content")
	}
	if len(v) > limits.MaxContentLen {
		return fmt.Errorf("content too large: %d > %d", len(v), limits.MaxContentLen)
	}
	return nil
}

// Label clamps a display label to the configured bound. Labels are
// cosmetic, so over-long input is truncated rather than rejected.
func Label(v string) string {
	if len(v) > limits.MaxLabelLen {
		return v[:limits.MaxLabelLen]
	}
	return v
}

// Filename sanitizes a peer-supplied filename: strip any path component,
// clamp the length, and fall back to "file" when nothing usable remains.
func Filename(v string) string {
	base := filepath.Base(v)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "file"
	}
	if len(base) > limits.MaxFilenameLen {
		base = base[:limits.MaxFilenameLen]
	}
	return base
}
