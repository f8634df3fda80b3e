package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Taipei")
	if err != nil {
		panic(err)
	}
}

// force timezone to be the hospital's, the machine running this may
// sit in any region but the site only speaks its own calendar days
func Now() time.Time {
	return time.Now().In(Location)
}
