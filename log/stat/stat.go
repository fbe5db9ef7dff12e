// Package stat collects per-operation execution counts and durations.
package stat

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/peak/s5nav/strutil"
)

const (
	totalCount = iota
	succCount
	timeInfo
)

var (
	mu      sync.Mutex
	enabled bool
	stats   statistics
)

type statistics [3]map[string]int64

// InitStat initializes collecting program statistics.
func InitStat() {
	mu.Lock()
	defer mu.Unlock()

	enabled = true
	for i := range stats {
		stats[i] = map[string]int64{}
	}
}

// Stat implements log.Message interface.
type Stat struct {
	Visited     string  `json:"visited"`
	SuccVisits  int64   `json:"success visits"`
	ErrVisits   int64   `json:"error visits"`
	AvgExecTime float64 `json:"avg. execution time"`
}

func (s Stat) String() string {
	return fmt.Sprintf("visited %q %d time with %d ERROR and %d SUCCESS returns; average execution time: %f msec.",
		s.Visited, s.ErrVisits+s.SuccVisits, s.ErrVisits, s.SuccVisits, s.AvgExecTime)
}

func (s Stat) JSON() string {
	return strutil.JSON(s)
}

// Collect collects function execution data. It is meant to be deferred:
//
//	defer stat.Collect("cp", time.Now(), &err)()
func Collect(path string, t time.Time, err *error) func() {
	return func() {
		mu.Lock()
		defer mu.Unlock()

		if !enabled {
			return
		}
		if err == nil || *err == nil {
			stats[succCount][path]++
		}
		stats[totalCount][path]++
		stats[timeInfo][path] += time.Since(t).Milliseconds()
	}
}

// Statistics will return statistics that has been collected so far, ordered
// by operation name.
func Statistics() []Stat {
	mu.Lock()
	defer mu.Unlock()

	result := make([]Stat, 0)
	if !enabled {
		return result
	}

	for path, cnt := range stats[totalCount] {
		cntSucc := stats[succCount][path]
		avgTime := float64(stats[timeInfo][path]) / float64(cnt)

		result = append(result, Stat{
			Visited:     path,
			SuccVisits:  cntSucc,
			ErrVisits:   cnt - cntSucc,
			AvgExecTime: avgTime,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Visited < result[j].Visited })
	return result
}
