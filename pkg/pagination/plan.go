package pagination

import "fmt"

// PageSpec is one page request of a batch.
type PageSpec struct {
	Sequence int
	Offset   int
	Size     int
}

// FetchBatch is the page plan of one fetch call. Page sizes sum to
// RequestedCount; sequences are contiguous from 0.
type FetchBatch struct {
	RequestedCount int
	Pages          []PageSpec
}

// Plan splits count into pages of at most pageCap items.
func Plan(count, pageCap int) (FetchBatch, error) {
	if count < 0 {
		return FetchBatch{}, fmt.Errorf("invalid count %d", count)
	}
	if pageCap <= 0 {
		return FetchBatch{}, fmt.Errorf("invalid page cap %d", pageCap)
	}

	batch := FetchBatch{
		RequestedCount: count,
		Pages:          make([]PageSpec, 0, (count+pageCap-1)/pageCap),
	}
	for offset, seq := 0, 0; offset < count; seq++ {
		size := min(pageCap, count-offset)
		batch.Pages = append(batch.Pages, PageSpec{Sequence: seq, Offset: offset, Size: size})
		offset += size
	}
	return batch, nil
}
