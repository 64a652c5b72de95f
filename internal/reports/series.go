package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

// maxBuckets bounds how many points one series request may produce.
const maxBuckets = 400

// Point is one bucket of a sales series. Period is the bucket start date.
type Point struct {
	Period  string          `json:"period"`
	Start   time.Time       `json:"start"`
	Orders  int             `json:"orders"`
	Units   int             `json:"units"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Series is a zero-filled sales series for one seller.
type Series struct {
	SellerID uuid.UUID        `json:"seller_id"`
	Bucket   enums.TimeBucket `json:"bucket"`
	From     time.Time        `json:"from"`
	To       time.Time        `json:"to"`
	Points   []Point          `json:"points"`
}

// BucketStart truncates t to the start of its bucket in loc. Weeks start on
// Monday.
func BucketStart(t time.Time, bucket enums.TimeBucket, loc *time.Location) time.Time {
	t = t.In(loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	switch bucket {
	case enums.TimeBucketWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case enums.TimeBucketMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	}
	return day
}

func nextBucket(start time.Time, bucket enums.TimeBucket) time.Time {
	switch bucket {
	case enums.TimeBucketWeek:
		return start.AddDate(0, 0, 7)
	case enums.TimeBucketMonth:
		return start.AddDate(0, 1, 0)
	}
	return start.AddDate(0, 0, 1)
}

// bucketCount reports how many buckets cover [from, to).
func bucketCount(from, to time.Time, bucket enums.TimeBucket, loc *time.Location) int {
	n := 0
	for start := BucketStart(from, bucket, loc); start.Before(to); start = nextBucket(start, bucket) {
		n++
		if n > maxBuckets {
			break
		}
	}
	return n
}

// BuildSeries folds sales rows into zero-filled buckets covering [from, to).
// Orders counts distinct sub-orders per bucket.
func BuildSeries(rows []SalesRow, from, to time.Time, bucket enums.TimeBucket, loc *time.Location) []Point {
	var points []Point
	index := make(map[time.Time]int)
	for start := BucketStart(from, bucket, loc); start.Before(to); start = nextBucket(start, bucket) {
		index[start] = len(points)
		points = append(points, Point{Period: start.Format("2006-01-02"), Start: start, Revenue: decimal.Zero})
	}

	seen := make(map[time.Time]map[uuid.UUID]bool, len(points))
	for _, row := range rows {
		start := BucketStart(row.CreatedAt, bucket, loc)
		i, ok := index[start]
		if !ok {
			continue
		}
		p := &points[i]
		p.Units += row.Quantity
		p.Revenue = p.Revenue.Add(row.LineTotal)
		if seen[start] == nil {
			seen[start] = make(map[uuid.UUID]bool)
		}
		if !seen[start][row.SubOrderID] {
			seen[start][row.SubOrderID] = true
			p.Orders++
		}
	}
	return points
}
