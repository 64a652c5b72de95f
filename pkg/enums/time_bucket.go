package enums

import "slices"

// TimeBucket is the grouping granularity for sales series.
type TimeBucket string

const (
	TimeBucketDay   TimeBucket = "day"
	TimeBucketWeek  TimeBucket = "week"
	TimeBucketMonth TimeBucket = "month"
)

var validTimeBuckets = []TimeBucket{
	TimeBucketDay,
	TimeBucketWeek,
	TimeBucketMonth,
}

func (t TimeBucket) String() string {
	return string(t)
}

func (t TimeBucket) IsValid() bool {
	return slices.Contains(validTimeBuckets, t)
}

func ParseTimeBucket(value string) (TimeBucket, error) {
	return parseEnum("time bucket", value, validTimeBuckets)
}
