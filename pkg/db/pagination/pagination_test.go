package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDefaultsAndClamps(t *testing.T) {
	assert.Equal(t, Pagination{Page: 1, Limit: 20}, Parse("", ""))
	assert.Equal(t, Pagination{Page: 1, Limit: 20}, Parse("abc", "-3"))
	assert.Equal(t, Pagination{Page: 3, Limit: 100}, Parse("3", "500"))
	assert.Equal(t, Pagination{Page: 1, Limit: 5}, Parse("0", "5"))
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Pagination{Page: 1, Limit: 20}.Offset())
	assert.Equal(t, 40, Pagination{Page: 3, Limit: 20}.Offset())
}

func TestBuildPageInfo(t *testing.T) {
	info := BuildPageInfo(Pagination{Page: 2, Limit: 10}, 25)
	assert.Equal(t, 3, info.TotalPages)
	assert.True(t, info.HasNext)
	assert.True(t, info.HasPrev)

	last := BuildPageInfo(Pagination{Page: 3, Limit: 10}, 25)
	assert.False(t, last.HasNext)

	empty := BuildPageInfo(Pagination{Page: 1, Limit: 10}, 0)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNext)
	assert.False(t, empty.HasPrev)
}
