package build

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Report summarizes a run.
type Report struct {
	Scanned   int
	Stale     int
	Generated int
	Failed    int
	Classes   int
	Bytes     int64
	Duration  time.Duration
	Results   []Result
	// SkippedOutputs lists inputs whose output path collided with another
	// header's.
	SkippedOutputs []string
}

func (r *Report) add(results []Result) {
	for _, res := range results {
		r.Results = append(r.Results, res)
		switch res.Status {
		case StatusCompleted:
			r.Generated++
			r.Classes += res.Classes
			r.Bytes += int64(res.Bytes)
		default:
			r.Failed++
		}
	}
}

// Summary renders the report as one line.
func (r *Report) Summary() string {
	return fmt.Sprintf("%s headers scanned, %s stale, %s generated (%s classes, %s), %s failed, %s skipped in %s",
		humanize.Comma(int64(r.Scanned)),
		humanize.Comma(int64(r.Stale)),
		humanize.Comma(int64(r.Generated)),
		humanize.Comma(int64(r.Classes)),
		humanize.Bytes(uint64(r.Bytes)),
		humanize.Comma(int64(r.Failed)),
		humanize.Comma(int64(len(r.SkippedOutputs))),
		r.Duration.Round(time.Millisecond))
}
