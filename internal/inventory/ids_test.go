package inventory

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBatchID_Format(t *testing.T) {
	re := regexp.MustCompile(`^B-\d{10}$`)
	for i := 0; i < 100; i++ {
		assert.Regexp(t, re, NewBatchID())
	}
}
