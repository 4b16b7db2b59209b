package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{name: "single element", input: []string{"foo"}, expected: []string{"foo"}},
		{name: "trims and drops blanks", input: []string{"  foo ", "", "   ", "bar"}, expected: []string{"foo", "bar"}},
		{name: "dedupes after trimming", input: []string{"foo", " foo", "bar", "foo "}, expected: []string{"foo", "bar"}},
		{name: "case sensitive", input: []string{"Foo", "foo"}, expected: []string{"Foo", "foo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []int{3, 1, 2}, Dedupe([]int{3, 1, 3, 2, 1}))
	assert.Empty(t, Dedupe[int](nil))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList("  "))
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitList("a:9092, b:9092,,a:9092"))
}
