package catalog

// windowSize is the maximum number of page links shown at once.
const windowSize = 5

// TotalPages returns the number of PageSize pages needed for items results.
func TotalPages(items int) int {
	if items <= 0 {
		return 0
	}
	return (items + PageSize - 1) / PageSize
}

// PageWindow returns the page numbers to render as navigation links around
// current. The window holds at most five pages, is clipped to [1, total]
// and is empty when total is zero.
func PageWindow(current, total int) []int {
	if total <= 0 {
		return []int{}
	}
	if total <= windowSize {
		return pageRange(1, total)
	}
	if current <= 3 {
		return pageRange(1, windowSize)
	}
	if current >= total-2 {
		return pageRange(total-windowSize+1, total)
	}
	return pageRange(current-2, current+2)
}

func pageRange(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for p := from; p <= to; p++ {
		out = append(out, p)
	}
	return out
}
