package timezone

import (
	"fmt"
	"time"
)

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Los_Angeles")
	if err != nil {
		panic(err)
	}
}

// force timezone to be in LA because sometimes our servers
// end up on east coast which will cause disturbances when
// manipulating dates based on <time.Time>.Year()/Month()/Day()/Hour()/...
func Now() time.Time {
	return time.Now().In(Location)
}

// billing periods are calendar months in the canonical timezone,
// rendered "2006-01" so they sort lexicographically
func Period(t time.Time) string {
	t = t.In(Location)
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

func StartOfPeriod(t time.Time) time.Time {
	t = t.In(Location)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, Location)
}

func StartOfNextPeriod(t time.Time) time.Time {
	t = t.In(Location)
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, Location)
}
