package lib

import "fmt"
import "math"
import "strconv"
import "strings"

// moments accumulate count, extremes, sum and sum of squares over a
// stream of samples.
type moments struct {
	n      int64
	minval int64
	maxval int64
	sum    int64
	sumsq  float64
}

func (m *moments) add(sample int64) {
	m.n++
	if m.n == 1 || sample < m.minval {
		m.minval = sample
	}
	if m.n == 1 || sample > m.maxval {
		m.maxval = sample
	}
	m.sum += sample
	m.sumsq += float64(sample) * float64(sample)
}

// Min return minimum value from sample.
func (m *moments) Min() int64 {
	return m.minval
}

// Max return maximum value from sample.
func (m *moments) Max() int64 {
	return m.maxval
}

// Samples return total number of samples in the set.
func (m *moments) Samples() int64 {
	return m.n
}

// Sum return the sum of all sample values.
func (m *moments) Sum() int64 {
	return m.sum
}

// Mean return the average value of all samples, truncated.
func (m *moments) Mean() int64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / m.n
}

// Variance return the squared deviation of samples from their mean.
func (m *moments) Variance() float64 {
	if m.n == 0 {
		return 0
	}
	mean := float64(m.Mean())
	return (m.sumsq / float64(m.n)) - (mean * mean)
}

// SD return standard deviation of samples.
func (m *moments) SD() float64 {
	return math.Sqrt(math.Max(m.Variance(), 0))
}

func (m *moments) stats() map[string]interface{} {
	return map[string]interface{}{
		"samples":     m.n,
		"min":         m.minval,
		"max":         m.maxval,
		"mean":        m.Mean(),
		"variance":    m.Variance(),
		"stddeviance": m.SD(),
	}
}

// AverageInt64 track mean and deviation of samples, like the work done
// by each step of an incremental algorithm.
type AverageInt64 struct {
	moments
}

// Add a sample.
func (av *AverageInt64) Add(sample int64) {
	av.add(sample)
}

// Stats return samples, min, max, mean, variance and stddeviance.
func (av *AverageInt64) Stats() map[string]interface{} {
	return av.stats()
}

// HistogramInt64 count samples in buckets of equal width between
// [from, till), samples outside the range fall in the first and last
// bucket.
type HistogramInt64 struct {
	moments
	from    int64
	till    int64
	width   int64
	buckets []int64
}

// NewHistogramInt64 return a new histogram, from and till are rounded
// down to a multiple of width.
func NewHistogramInt64(from, till, width int64) *HistogramInt64 {
	if width <= 0 {
		panic(fmt.Errorf("NewHistogramInt64(): invalid width %v", width))
	}
	from, till = (from/width)*width, (till/width)*width
	h := &HistogramInt64{from: from, till: till, width: width}
	h.buckets = make([]int64, ((till-from)/width)+2)
	return h
}

// Add a sample to this histogram.
func (h *HistogramInt64) Add(sample int64) {
	h.add(sample)
	switch {
	case sample < h.from:
		h.buckets[0]++
	case sample >= h.till:
		h.buckets[len(h.buckets)-1]++
	default:
		h.buckets[((sample-h.from)/h.width)+1]++
	}
}

// Stats return cumulative counts, key is the bound below which the
// samples fall and "+" counts all samples. Buckets after the last
// non-empty one are left out.
func (h *HistogramInt64) Stats() map[string]int64 {
	m := make(map[string]int64)
	h.cumulative(func(key string, count int64) { m[key] = count })
	return m
}

// Fullstats includes samples, min, max, mean, variance and
// stddeviance along with Stats() under "histogram".
func (h *HistogramInt64) Fullstats() map[string]interface{} {
	stats, hmap := h.stats(), make(map[string]interface{})
	for k, v := range h.Stats() {
		hmap[k] = v
	}
	stats["histogram"] = hmap
	return stats
}

// Logstring return Fullstats as loggable string, buckets in
// ascending order.
func (h *HistogramInt64) Logstring() string {
	ss := []string{}
	for _, key := range []string{"max", "mean", "min", "samples"} {
		ss = append(ss, fmt.Sprintf(`"%v": %v`, key, h.stats()[key]))
	}
	ss = append(ss, fmt.Sprintf(`"stddeviance": %.2f`, h.SD()))
	hs := []string{}
	h.cumulative(func(key string, count int64) {
		hs = append(hs, fmt.Sprintf(`"%v": %v`, key, count))
	})
	ss = append(ss, `"histogram": {`+strings.Join(hs, ",")+"}")
	return "{" + strings.Join(ss, ",") + "}"
}

func (h *HistogramInt64) cumulative(fn func(key string, count int64)) {
	last := len(h.buckets) - 1
	for last >= 0 && h.buckets[last] == 0 {
		last--
	}
	cumm := int64(0)
	for i := 0; i <= last; i++ {
		cumm += h.buckets[i]
		if i == last {
			fn("+", cumm)
			break
		}
		fn(strconv.Itoa(int(h.from+int64(i)*h.width)), cumm)
	}
}
