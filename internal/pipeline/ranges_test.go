package pipeline

import (
	"testing"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanRangesSmallPartition(t *testing.T) {
	pages := TotalPages(35, 10)
	require.Equal(t, 4, pages)

	assert.Equal(t, []models.PageRange{
		{Start: 1, End: 1},
		{Start: 2, End: 2},
		{Start: 3, End: 3},
		{Start: 4, End: 4},
	}, PlanRanges(pages, 4))
}

func TestPlanRangesLargePartition(t *testing.T) {
	assert.Equal(t, []models.PageRange{
		{Start: 1, End: 442},
		{Start: 443, End: 884},
		{Start: 885, End: 1326},
		{Start: 1327, End: 1767},
	}, PlanRanges(1767, 4))
}

func TestPlanRangesCoversEveryPageOnce(t *testing.T) {
	for total := 1; total <= 150; total++ {
		for workers := 1; workers <= 12; workers++ {
			ranges := PlanRanges(total, workers)

			require.NotEmpty(t, ranges)
			assert.LessOrEqual(t, len(ranges), workers)
			assert.Equal(t, 1, ranges[0].Start)
			assert.Equal(t, total, ranges[len(ranges)-1].End)

			sum := 0
			for i, r := range ranges {
				assert.LessOrEqual(t, r.Start, r.End, "total=%d workers=%d", total, workers)
				if i > 0 {
					assert.Equal(t, ranges[i-1].End+1, r.Start, "total=%d workers=%d", total, workers)
				}
				sum += r.Pages()
			}
			assert.Equal(t, total, sum)
		}
	}
}

func TestPlanRangesEdges(t *testing.T) {
	assert.Nil(t, PlanRanges(0, 4))
	assert.Equal(t, []models.PageRange{{Start: 1, End: 7}}, PlanRanges(7, 0))
	assert.Len(t, PlanRanges(3, 10), 3)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 10))
	assert.Equal(t, 1, TotalPages(1, 10))
	assert.Equal(t, 1, TotalPages(10, 10))
	assert.Equal(t, 2, TotalPages(11, 10))
	assert.Equal(t, 0, TotalPages(100, 0))
}
