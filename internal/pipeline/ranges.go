package pipeline

import "github.com/nexconsult/precatorios/internal/models"

// TotalPages estimates the page count of a partition from its advertised
// record count
func TotalPages(expectedRecords, pageSize int) int {
	if expectedRecords <= 0 || pageSize <= 0 {
		return 0
	}
	return (expectedRecords + pageSize - 1) / pageSize
}

// PlanRanges splits [1, totalPages] into at most numWorkers contiguous,
// disjoint ranges of ceil(totalPages/numWorkers) pages. The last range takes
// whatever is left, so no page is dropped or assigned twice.
func PlanRanges(totalPages, numWorkers int) []models.PageRange {
	if totalPages < 1 {
		return nil
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > totalPages {
		numWorkers = totalPages
	}

	chunk := (totalPages + numWorkers - 1) / numWorkers
	ranges := make([]models.PageRange, 0, numWorkers)
	for start := 1; start <= totalPages; start += chunk {
		end := start + chunk - 1
		if end > totalPages {
			end = totalPages
		}
		ranges = append(ranges, models.PageRange{Start: start, End: end})
	}
	return ranges
}
