package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	ErrBaseErr := New("base error")
	assert.Equal(t, "base error", ErrBaseErr.Error())
	assert.Equal(t, "msg", ErrBaseErr.New("msg").Error())
	assert.ErrorIs(t, ErrBaseErr, ErrBaseErr)

	ErrFirstLevel := ErrBaseErr.New("first level")
	assert.Equal(t, "first level", ErrFirstLevel.Error())
	assert.ErrorIs(t, ErrFirstLevel, ErrBaseErr)

	ErrAnotherErr := New("another error")
	ErrAnotherErrMsg := ErrAnotherErr.Msg("another error msg")
	ErrWrappedErr := ErrFirstLevel.Err(ErrAnotherErrMsg)
	assert.Equal(t, "first level", ErrWrappedErr.Error())
	assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
	assert.ErrorIs(t, ErrWrappedErr, ErrFirstLevel)
	assert.ErrorIs(t, ErrWrappedErr, ErrAnotherErr)
	assert.ErrorIs(t, ErrWrappedErr, ErrAnotherErrMsg)

	err := errors.New("error")
	ErrWrappedErr = ErrFirstLevel.Err(err)
	assert.Equal(t, "first level", ErrWrappedErr.Error())
	assert.ErrorIs(t, ErrWrappedErr, err)

	ErrWrappedErr = ErrFirstLevel.MsgErr("msg", err)
	assert.Equal(t, "msg", ErrWrappedErr.Error())
	assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
	assert.ErrorIs(t, ErrWrappedErr, err)

	goErr := fmt.Errorf("go error")
	ErrWrappedGoErr := ErrFirstLevel.Err(goErr)
	assert.Equal(t, "first level", ErrWrappedGoErr.Error())
	assert.ErrorIs(t, ErrWrappedGoErr, goErr)
}

func TestErrorAll(t *testing.T) {
	base := New("base")
	wrapped := base.MsgErr("outer", errors.New("inner one"), errors.New("inner two"))
	assert.Equal(t, "outer", wrapped.Error())
	assert.Contains(t, wrapped.ErrorAll(), "inner one")
	assert.Contains(t, wrapped.ErrorAll(), "inner two")
}

func TestStatusAndWireCode(t *testing.T) {
	base := New("auth failed").SetStatusCode(http.StatusUnauthorized).SetWireCode("AuthFailed")
	assert.Equal(t, http.StatusUnauthorized, base.StatusCode())
	assert.Equal(t, "AuthFailed", base.WireCode())

	// derived errors inherit status and wire codes
	derived := base.New("signature did not verify")
	assert.Equal(t, http.StatusUnauthorized, derived.StatusCode())
	assert.Equal(t, "AuthFailed", derived.WireCode())

	msg := base.Msg("challenge expired")
	assert.Equal(t, "AuthFailed", msg.WireCode())

	untagged := New("plain")
	assert.Equal(t, "", untagged.WireCode())
}
