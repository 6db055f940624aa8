// Formats byte amounts into human readable format
package byteshuman

import (
	"fmt"
)

const (
	B   = 1
	kiB = 1024 * B
	MiB = 1024 * kiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
	PiB = 1024 * TiB
)

func Humanize(num uint64) string {
	for _, unit := range units {
		if num >= unit.size {
			return fmt.Sprintf("%.02f %s", float64(num)/float64(unit.size), unit.suffix)
		}
	}

	return fmt.Sprintf("%d B", num)
}

// free space of an overcommitted node goes negative
func HumanizeSigned(num int64) string {
	if num < 0 {
		// not -num, which overflows for math.MinInt64
		return "-" + Humanize(uint64(^num)+1)
	}

	return Humanize(uint64(num))
}

var units = []struct {
	size   uint64
	suffix string
}{
	{PiB, "PiB"},
	{TiB, "TiB"},
	{GiB, "GiB"},
	{MiB, "MiB"},
	{kiB, "kiB"},
}
