package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		page, size int
		offset     int
		limit      int
	}{
		{name: "defaults", page: 0, size: 0, offset: 0, limit: DefaultPageSize},
		{name: "second page", page: 2, size: 10, offset: 10, limit: 10},
		{name: "size capped", page: 1, size: 1000, offset: 0, limit: MaxPageSize},
		{name: "negative page", page: -3, size: 5, offset: 0, limit: 5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			offset, limit := Calculate(tt.page, tt.size)
			assert.Equal(t, tt.offset, offset)
			assert.Equal(t, tt.limit, limit)
		})
	}
}

func TestNewPage(t *testing.T) {
	t.Parallel()

	p := NewPage([]string{"a", "b"}, 2, 2, 2, 5)
	assert.Equal(t, Meta{Page: 2, Size: 2, Total: 5, TotalPages: 3, HasPrev: true, HasNext: true}, p.Meta)

	empty := NewPage[string](nil, 1, 0, 20, 0)
	assert.NotNil(t, empty.Data)
	assert.False(t, empty.Meta.HasNext)
	assert.EqualValues(t, 0, empty.Meta.TotalPages)
}

func TestParseIntDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 7, ParseIntDefault("", 7))
	assert.Equal(t, 3, ParseIntDefault("3", 7))
	assert.Equal(t, 7, ParseIntDefault("x", 7))
}
