package ledgertime

import (
	"fmt"
	"time"
)

var systemNow = time.Now

// ProtocolEpoch is the start of the protocol common era.
// 2025-01-01 00:00:00 UTC
var ProtocolEpoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// Time is a ledger timestamp, counted in whole seconds since ProtocolEpoch.
// All protocol deadlines (challenge, counter-bond, arbitration, evidence
// windows) are absolute Time values; missing one is permanent, never
// retryable.
type Time uint64

// Now returns the current system time as a ledger Time.
func Now() Time {
	return fromTime(systemNow())
}

// FromTime converts a standard time.Time to a ledger Time.
func FromTime(t time.Time) (Time, error) {
	if t.Before(ProtocolEpoch) {
		return 0, ErrBeforeProtocolEpoch
	}
	return fromTime(t), nil
}

func fromTime(t time.Time) Time {
	return Time(t.Unix() - ProtocolEpoch.Unix())
}

// ToTime converts a ledger Time to a standard time.Time.
func (t Time) ToTime() time.Time {
	return time.Unix(ProtocolEpoch.Unix()+int64(t), 0).UTC()
}

// Before reports whether the time instant t is before u
func (t Time) Before(u Time) bool {
	return t < u
}

// After reports whether the time instant t is after u
func (t Time) After(u Time) bool {
	return t > u
}

// Add returns the time t+d, truncated to whole seconds.
func (t Time) Add(d time.Duration) Time {
	return t + Time(d/time.Second)
}

// Sub returns the duration t-u.
func (t Time) Sub(u Time) time.Duration {
	return time.Duration(int64(t-u)) * time.Second
}

// IsZero reports whether t is the protocol epoch itself.
func (t Time) IsZero() bool {
	return t == 0
}

func (t Time) String() string {
	return fmt.Sprintf("%d@%s", uint64(t), t.ToTime().Format(time.RFC3339))
}

// MarshalJSON implements the json.Marshaler interface
func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, t.ToTime().Format(time.RFC3339))), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (t *Time) UnmarshalJSON(data []byte) error {
	parsed, err := time.Parse(`"`+time.RFC3339+`"`, string(data))
	if err != nil {
		return err
	}
	*t, err = FromTime(parsed)
	return err
}
