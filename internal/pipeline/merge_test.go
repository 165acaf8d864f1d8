package pipeline

import (
	"fmt"
	"testing"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(partitionID int, from, to int) []models.Record {
	var out []models.Record
	for i := from; i < to; i++ {
		out = append(out, models.Record{
			PartitionID: partitionID,
			Number:      fmt.Sprintf("%04d", i),
			OrderNum:    i + 1,
		})
	}
	return out
}

func TestMergerOverlapWithAuthoritativeRecovery(t *testing.T) {
	// primary: 0..49, recovery: 2..53 (48 keys overlap)
	primary := records(1, 0, 50)
	recovery := records(1, 2, 54)

	res := NewMerger().Finalize(primary, recovery, []int{1})

	assert.Len(t, res.Records, 52)
	assert.Equal(t, 48, res.Duplicates)
	assert.Equal(t, 2, res.Superseded)
	assert.Equal(t, res.InputCount, len(res.Records)+res.Duplicates+res.Superseded)
	assert.Equal(t, "0002", res.Records[0].Number)
}

func TestMergerOverlapWithoutAuthority(t *testing.T) {
	primary := records(1, 0, 50)
	recovery := records(1, 2, 54)

	res := NewMerger().Finalize(primary, recovery, nil)

	assert.Len(t, res.Records, 54)
	assert.Equal(t, 48, res.Duplicates)
	assert.Zero(t, res.Superseded)
}

func TestMergerKeyIsScopedToPartition(t *testing.T) {
	primary := append(records(1, 0, 3), records(2, 0, 3)...)

	res := NewMerger().Finalize(primary, nil, nil)
	assert.Len(t, res.Records, 6)
	assert.Zero(t, res.Duplicates)
}

func TestMergerIsIdempotent(t *testing.T) {
	primary := append(records(2, 0, 5), records(1, 0, 5)...)
	primary = append(primary, records(1, 3, 5)...)

	once := NewMerger().Finalize(primary, nil, nil)
	twice := NewMerger().Finalize(once.Records, nil, nil)

	assert.Equal(t, once.Records, twice.Records)
	assert.Equal(t, 2, once.Duplicates)
	assert.Zero(t, twice.Duplicates)
}

func TestMergerSortOrder(t *testing.T) {
	primary := []models.Record{
		{PartitionID: 2, Number: "a", OrderNum: 1},
		{PartitionID: 1, Number: "c", OrderNum: 2},
		{PartitionID: 1, Number: "b", OrderNum: 2},
		{PartitionID: 1, Number: "d", OrderNum: 1},
	}

	res := NewMerger().Finalize(primary, nil, nil)
	require.Len(t, res.Records, 4)

	var got []string
	for _, r := range res.Records {
		got = append(got, fmt.Sprintf("%d/%s", r.PartitionID, r.Number))
	}
	assert.Equal(t, []string{"1/d", "1/b", "1/c", "2/a"}, got)
}

func TestMergerLeavesInputsUntouched(t *testing.T) {
	primary := []models.Record{
		{PartitionID: 2, Number: "x"},
		{PartitionID: 1, Number: "y"},
	}
	before := append([]models.Record(nil), primary...)

	NewMerger().Finalize(primary, nil, nil)
	assert.Equal(t, before, primary)
}
