package frame

import (
	"errors"
	"fmt"
)

var (
	ErrTagMismatch     = errors.New("frame: tag mismatch")
	ErrFramingMismatch = errors.New("frame: framing mismatch")
	ErrFrameLength     = errors.New("frame: wrong frame length")
	ErrInvalidSpec     = errors.New("frame: invalid spec")
)

// TagMismatchError reports a tagged field whose high bits carry the wrong channel number.
type TagMismatchError struct {
	Channel  ChannelID
	Offset   int
	Expected uint8
	Found    uint8
}

func (e *TagMismatchError) Error() string {
	return fmt.Sprintf("frame: tag mismatch for %s at byte %d: expected %d, found %d",
		e.Channel, e.Offset, e.Expected, e.Found)
}

func (e *TagMismatchError) Is(target error) bool { return target == ErrTagMismatch }

// FramingMismatchError reports a sentinel byte that does not hold its fixed value.
type FramingMismatchError struct {
	Channel  ChannelID
	Offset   int
	Expected byte
	Found    byte
}

func (e *FramingMismatchError) Error() string {
	return fmt.Sprintf("frame: framing mismatch for %s at byte %d: expected 0x%02X, found 0x%02X",
		e.Channel, e.Offset, e.Expected, e.Found)
}

func (e *FramingMismatchError) Is(target error) bool { return target == ErrFramingMismatch }

// Reason returns a short, stable label for a validation error, suitable for
// metric labels and log fields.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTagMismatch):
		return "tag_mismatch"
	case errors.Is(err, ErrFramingMismatch):
		return "framing_mismatch"
	case errors.Is(err, ErrFrameLength):
		return "frame_length"
	default:
		return "other"
	}
}
