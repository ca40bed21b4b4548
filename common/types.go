package common

import (
	"time"
)

// NullDuration is a nullable time.Duration, in the same vein as the
// nullable types provided by package gopkg.in/guregu/null.v3.
type NullDuration struct {
	Duration time.Duration
	Valid    bool
}

// NullDurationFrom returns a new valid NullDuration from a time.Duration.
func NullDurationFrom(d time.Duration) NullDuration {
	return NullDuration{Duration: d, Valid: true}
}

// UnmarshalText converts text data to a valid NullDuration.
// Empty text is a null duration.
func (d *NullDuration) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*d = NullDuration{}
		return nil
	}
	v, err := time.ParseDuration(string(data))
	if err != nil {
		return err //nolint:wrapcheck
	}
	*d = NullDurationFrom(v)
	return nil
}

// ValueOrZero returns the duration if valid or zero otherwise.
func (d NullDuration) ValueOrZero() time.Duration {
	if !d.Valid {
		return 0
	}
	return d.Duration
}
