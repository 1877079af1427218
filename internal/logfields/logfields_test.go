package logfields

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttrs(t *testing.T) {
	assert.Equal(t, "target", Target("node").Key)
	assert.Equal(t, "node", Target("node").Value.String())
	assert.Equal(t, int64(1500), Duration(1500*time.Millisecond).Value.Int64())
	assert.Equal(t, "boom", Error(errors.New("boom")).Value.String())
	assert.Equal(t, "", Error(nil).Value.String())
}
