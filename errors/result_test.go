package errors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	diskoerrors "github.com/dargueta/diskofat/errors"
)

func TestResultSatisfiesDriverError(t *testing.T) {
	var err diskoerrors.DriverError = diskoerrors.NoFile
	assert.Equal(t, diskoerrors.NoFile, err.Code())
	assert.Equal(t, "no such file", err.Error())
}

func TestWithMessage(t *testing.T) {
	err := diskoerrors.InvalidName.WithMessage("bad byte in segment")
	assert.Equal(t, diskoerrors.InvalidName, err.Code())
	assert.Contains(t, err.Error(), "bad byte in segment")
}

func TestWrapErrorUnwraps(t *testing.T) {
	inner := errors.New("device fault")
	wrapped := diskoerrors.RWError.WrapError(inner)

	assert.Equal(t, diskoerrors.RWError, wrapped.Code())
	require.ErrorIs(t, wrapped, inner)
}

func TestUnknownResultCodeFormats(t *testing.T) {
	var weird diskoerrors.Result = 200
	assert.Contains(t, weird.Error(), "200")
}
