package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors_Err(t *testing.T) {
	var errs Errors
	assert.NoError(t, errs.Err())

	errs.Add("name", "is required")
	errs.Add("position", "must be a finite number")

	err := errs.Err()
	require.Error(t, err)
	assert.Equal(t, "validation failed: name: is required; position: must be a finite number", err.Error())
	assert.Equal(t, []string{"name: is required", "position: must be a finite number"}, errs.Details())
}

func TestAs(t *testing.T) {
	var errs Errors
	errs.Add("title", "is required")
	wrapped := fmt.Errorf("entry 3: %w", errs.Err())

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Len(t, got, 1)
	assert.Equal(t, "title", got[0].Field)

	_, ok = As(fmt.Errorf("plain"))
	assert.False(t, ok)
}
