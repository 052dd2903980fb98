package editengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreviewReturnsEmptyForIdenticalContent(t *testing.T) {
	assert.Equal(t, "", Preview("a.txt", "same\n", "same\n"))
}

func TestPreviewReportsAddDeleteCountsAndLines(t *testing.T) {
	out := Preview("a.txt", "hello\n", "hullo\n")
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "+")
	assert.Contains(t, out, "-")
}
