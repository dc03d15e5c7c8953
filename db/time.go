package db

import "time"

// NowMs returns the current time in epoch milliseconds, the unit used for
// all timestamps stored in the database.
func NowMs() int64 {
	return time.Now().UnixMilli()
}
