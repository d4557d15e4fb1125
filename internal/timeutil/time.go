package timeutil

import (
	"encoding/json"
	"strconv"
	"time"
)

// Time marshals as RFC 3339 and unmarshals from either RFC 3339 strings or
// integer Unix nanoseconds, which is what the kernel-side collaborators emit.
type Time time.Time

func (t *Time) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == "{}" {
		return nil
	}
	if s[0] == '"' {
		tt, err := time.Parse(`"`+time.RFC3339Nano+`"`, s)
		if err != nil {
			return err
		}
		*t = Time(tt)
	} else {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*t = Time(time.Unix(0, i))
	}
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(time.RFC3339Nano))
}

func (t Time) Time() time.Time {
	return time.Time(t)
}
