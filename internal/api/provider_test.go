package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchError_Classification(t *testing.T) {
	transient := &FetchError{Source: "aaa", LocationKey: "GA", StatusCode: 503, Transient: true, Err: errors.New("server error")}
	permanent := &FetchError{Source: "aaa", LocationKey: "XX", StatusCode: 404, Err: errors.New("not found")}

	assert.True(t, IsTransient(transient))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", transient)))
	assert.False(t, errors.Is(transient, ErrPermanent))

	assert.False(t, IsTransient(permanent))
	assert.True(t, errors.Is(permanent, ErrPermanent))

	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(nil))

	assert.Equal(t, "aaa fetch GA (transient): status 503: server error", transient.Error())
}

func TestFetchError_Unwrap(t *testing.T) {
	err := &FetchError{Source: "aaa", LocationKey: "GA", Transient: true, Err: context.DeadlineExceeded}
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "aaa fetch GA (transient): context deadline exceeded", err.Error())
}
