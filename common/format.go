package common

import (
	"strconv"
	"strings"
	"time"
)

// ShortAddress abbreviates an address to its first six and last four
// characters, e.g. 0x1234...abcd. Short inputs are returned unchanged.
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// FormatTimestamp renders a decimal unix timestamp in seconds in loc.
// Unparseable input is returned unchanged.
func FormatTimestamp(timestamp string, loc *time.Location) string {
	secs, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return timestamp
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(secs, 0).In(loc).Format("2006-01-02 15:04:05")
}
