package util

import (
	"fmt"
	"strconv"
)

func MustParseSnowflakeInt64(s string) int64 {
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		panic(fmt.Errorf("could not parse Snowflake ID string: %w", err))
	}
	return val
}

func FormatSnowflakeInt64(s int64) string {
	return strconv.FormatInt(s, 10)
}
