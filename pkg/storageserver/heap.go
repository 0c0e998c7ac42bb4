package storageserver

import "container/heap"

// dataFileEntry tracks one data file's current physical length for the
// shortest-file allocation heap described in spec §4.1's put: "the
// selected file is popped, written, its new length pushed back."
type dataFileEntry struct {
	length int64
	idx    int
}

// dataFileHeap is a min-heap by length, so Put always targets the
// currently-shortest data file — this keeps every data file's length
// approximately equal over time, mirroring the original's
// HeapComparator/std::make_heap usage.
type dataFileHeap []dataFileEntry

func (h dataFileHeap) Len() int            { return len(h) }
func (h dataFileHeap) Less(i, j int) bool  { return h[i].length < h[j].length }
func (h dataFileHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *dataFileHeap) Push(x interface{}) { *h = append(*h, x.(dataFileEntry)) }

func (h *dataFileHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// removeDataFileFromHeap removes the entry for data file idx from the heap, used
// by compact to exclude the file being drained from concurrent puts.
// Reports whether an entry was found.
func removeDataFileFromHeap(h *dataFileHeap, idx int) (dataFileEntry, bool) {
	for i, e := range *h {
		if e.idx == idx {
			removed := e
			last := len(*h) - 1
			(*h)[i] = (*h)[last]
			*h = (*h)[:last]
			heap.Init(h)
			return removed, true
		}
	}
	return dataFileEntry{}, false
}
