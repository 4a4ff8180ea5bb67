package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginationBounds(t *testing.T) {
	cases := []struct {
		page, perPage, total int
		start, end           int
	}{
		{1, 20, 5, 0, 5},
		{2, 2, 5, 2, 4},
		{3, 2, 5, 4, 5},
		{4, 2, 5, 5, 5},
		{0, 0, 0, 0, 0},
	}
	for _, tc := range cases {
		start, end := NewPagination(tc.page, tc.perPage, tc.total).Bounds()
		assert.Equal(t, tc.start, start, "page %d", tc.page)
		assert.Equal(t, tc.end, end, "page %d", tc.page)
	}
}

func TestPaginationClampsPerPage(t *testing.T) {
	assert.Equal(t, MaxPerPage, NewPagination(1, 1000, 10).PerPage)
	assert.Equal(t, 1, NewPagination(-3, 10, 10).Page)
}
