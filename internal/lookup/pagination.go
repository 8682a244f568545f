package lookup

import "fmt"

// PageBounds returns the [start, end) slice of a 1-based page, clamped to [0, total].
// Page and size may be arbitrarily large; the bounds are computed without overflow.
func PageBounds(page, size, total int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if total <= 0 || page-1 > total/size {
		return total, total
	}
	start := (page - 1) * size
	if start > total {
		return total, total
	}
	end := total
	if size <= total-start {
		end = start + size
	}
	return start, end
}

// PageCount is the number of pages for total matches; an empty result still has one page.
func PageCount(total, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	if total <= 0 {
		return 1
	}
	return (total-1)/size + 1
}

// ClampPage moves an out-of-range page onto the nearest valid page. Search itself does not
// clamp; callers that prefer the clamping policy apply this first.
func ClampPage(page, total, size int) int {
	if page < 1 {
		return 1
	}
	if last := PageCount(total, size); page > last {
		return last
	}
	return page
}

// Caption describes which rows of the result a page shows, e.g. "showing 11-20 of 25 (page 2/3)".
func Caption(page ResultPage) string {
	if page.TotalMatches == 0 {
		return "no matching codes"
	}
	pages := PageCount(page.TotalMatches, page.PageSize)
	start, end := PageBounds(page.Page, page.PageSize, page.TotalMatches)
	if start == end {
		return fmt.Sprintf("no rows on page %d of %d (%d matches)", page.Page, pages, page.TotalMatches)
	}
	return fmt.Sprintf("showing %d-%d of %d (page %d/%d)", start+1, end, page.TotalMatches, page.Page, pages)
}
