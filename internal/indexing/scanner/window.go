package scanner

import (
	"errors"
	"fmt"
	"sort"
)

var ErrInvalidRange = errors.New("invalid scan range")

// Window is an inclusive block height range queried in one events call.
type Window struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

func (w Window) String() string {
	return fmt.Sprintf("%d-%d", w.Start, w.End)
}

// Size returns the number of blocks in the window.
func (w Window) Size() uint64 {
	return w.End - w.Start + 1
}

// Windows partitions [start, end] into consecutive windows of at most
// chunkSize blocks. The last window is clipped to end.
func Windows(start, end, chunkSize uint64) ([]Window, error) {
	if start > end || chunkSize == 0 {
		return nil, fmt.Errorf("%w: %d-%d chunk %d", ErrInvalidRange, start, end, chunkSize)
	}

	windows := make([]Window, 0, (end-start)/chunkSize+1)
	current := start
	for {
		// end-current avoids overflow when end is near MaxUint64.
		span := min(chunkSize-1, end-current)
		windows = append(windows, Window{Start: current, End: current + span})
		if current+span == end {
			return windows, nil
		}
		current += span + 1
	}
}

func (w Window) overlaps(other Window) bool {
	return w.Start <= other.End+1 && other.Start <= w.End+1
}

// MergeWindows merges overlapping and adjacent windows, sorted by start.
func MergeWindows(windows []Window) []Window {
	if len(windows) <= 1 {
		return windows
	}

	sorted := make([]Window, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := []Window{sorted[0]}
	for _, current := range sorted[1:] {
		last := &merged[len(merged)-1]
		if last.overlaps(current) {
			last.End = max(last.End, current.End)
			continue
		}
		merged = append(merged, current)
	}
	return merged
}

// ParseWindow parses a "start-end" string.
func ParseWindow(s string) (Window, error) {
	var start, end uint64
	if _, err := fmt.Sscanf(s, "%d-%d", &start, &end); err != nil {
		return Window{}, fmt.Errorf("invalid window format: %s", s)
	}
	if start > end {
		return Window{}, fmt.Errorf("start > end: %d > %d", start, end)
	}
	return Window{Start: start, End: end}, nil
}
