package terms

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidQuarter is returned when a quarter token cannot be parsed
var ErrInvalidQuarter = errors.New("invalid quarter token")

var (
	labelPattern = regexp.MustCompile(`^[Qq]([1-4])\s+(\d{4})$`)
	isoPattern   = regexp.MustCompile(`^(\d{4})-[Qq]([1-4])$`)
)

// Quarter is a calendar quarter such as Q1 2025
type Quarter struct {
	Year int
	Q    int
}

// ParseQuarter accepts "Q1 2025" or "2025-Q1"
func ParseQuarter(token string) (Quarter, error) {
	if m := labelPattern.FindStringSubmatch(token); m != nil {
		q, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[2])
		return Quarter{Year: y, Q: q}, nil
	}
	if m := isoPattern.FindStringSubmatch(token); m != nil {
		y, _ := strconv.Atoi(m[1])
		q, _ := strconv.Atoi(m[2])
		return Quarter{Year: y, Q: q}, nil
	}
	return Quarter{}, fmt.Errorf("%w: %q", ErrInvalidQuarter, token)
}

// QuarterOf returns the quarter containing t
func QuarterOf(t time.Time) Quarter {
	return Quarter{Year: t.Year(), Q: (int(t.Month())-1)/3 + 1}
}

// String renders the canonical label
func (q Quarter) String() string {
	return fmt.Sprintf("Q%d %d", q.Q, q.Year)
}

// Next returns the following quarter
func (q Quarter) Next() Quarter {
	if q.Q == 4 {
		return Quarter{Year: q.Year + 1, Q: 1}
	}
	return Quarter{Year: q.Year, Q: q.Q + 1}
}

// Before reports whether q precedes other
func (q Quarter) Before(other Quarter) bool {
	if q.Year != other.Year {
		return q.Year < other.Year
	}
	return q.Q < other.Q
}

// StartDate is the first day of the quarter in UTC
func (q Quarter) StartDate() time.Time {
	return time.Date(q.Year, time.Month((q.Q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
}

// DueDate is the last day of the quarter in UTC
func (q Quarter) DueDate() time.Time {
	return q.Next().StartDate().AddDate(0, 0, -1)
}
