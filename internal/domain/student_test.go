package domain

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareRollNum(t *testing.T) {
	rolls := []string{"10", "B2", "2", "A1", "1"}
	slices.SortFunc(rolls, CompareRollNum)

	assert.Equal(t, []string{"1", "2", "10", "A1", "B2"}, rolls)
	assert.Equal(t, 0, CompareRollNum("7", "7"))
}
