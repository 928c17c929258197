package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := ConfigInvalid("alpha out of range")
	wrapped := Wrap(base, "load configuration")

	assert.Equal(t, CodeConfigInvalid, GetCode(wrapped))
	assert.Equal(t, "load configuration: alpha out of range", wrapped.Error())
	assert.True(t, stderrors.Is(wrapped, base))
}

func TestWrapPlainError(t *testing.T) {
	cause := stderrors.New("boom")
	wrapped := Wrapf(cause, "site %s", "S1")

	assert.Equal(t, CodeInternalError, GetCode(wrapped))
	assert.True(t, stderrors.Is(wrapped, cause))
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestWithCode(t *testing.T) {
	err := WithCode(CodeInvalidInput, stderrors.New("bad row"))
	assert.Equal(t, CodeInvalidInput, GetCode(err))
	assert.True(t, IsAppError(err))
	assert.False(t, IsAppError(stderrors.New("plain")))
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}

func TestIOError(t *testing.T) {
	cause := stderrors.New("disk full")
	err := IOError("write clusters.tsv", cause)
	assert.Equal(t, "write clusters.tsv failed: disk full", err.Error())
	assert.Equal(t, CodeInvalidInput, GetCode(InvalidInputf("row %d", 3)))
}
