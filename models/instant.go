package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Instant is a point in time stored as milliseconds since the Unix epoch.
// It decodes every timestamp shape found in stored documents: JSON numbers
// (milliseconds), RFC 3339 strings, numeric strings, and
// {seconds, nanoseconds} objects as written by document database exports.
type Instant int64

func InstantOf(t time.Time) Instant {
	return Instant(t.UnixMilli())
}

func (i Instant) Time() time.Time {
	return time.UnixMilli(int64(i)).UTC()
}

func (i Instant) IsZero() bool {
	return i == 0
}

// Before reports whether the instant lies strictly before t.
func (i Instant) Before(t time.Time) bool {
	return int64(i) < t.UnixMilli()
}

func (i Instant) String() string {
	return i.Time().Format(time.RFC3339Nano)
}

type firestoreTimestamp struct {
	Seconds      *int64 `json:"seconds"`
	Nanoseconds  int64  `json:"nanoseconds"`
	USeconds     *int64 `json:"_seconds"`
	UNanoseconds int64  `json:"_nanoseconds"`
}

func (i *Instant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*i = 0
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return i.parseString(s)
	case '{':
		var ts firestoreTimestamp
		if err := json.Unmarshal(data, &ts); err != nil {
			return err
		}
		switch {
		case ts.Seconds != nil:
			*i = Instant(*ts.Seconds*1000 + ts.Nanoseconds/int64(time.Millisecond))
		case ts.USeconds != nil:
			*i = Instant(*ts.USeconds*1000 + ts.UNanoseconds/int64(time.Millisecond))
		default:
			return fmt.Errorf("instant: object has no seconds field")
		}
		return nil
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("instant: %w", err)
		}
		*i = Instant(int64(f))
		return nil
	}
}

func (i *Instant) parseString(s string) error {
	if s == "" {
		*i = 0
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*i = Instant(ms)
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("instant: unrecognised timestamp %q: %w", s, err)
	}
	*i = InstantOf(t)
	return nil
}
