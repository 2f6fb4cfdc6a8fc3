package util

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// TimestampToken returns the current unix time in milliseconds as a decimal
// string. Document and note ids are suffixed with it.
func TimestampToken(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}
