package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/infrastructure/validation"
)

func TestCommandsHaveUsage(t *testing.T) {
	for name, cmd := range commands {
		assert.True(t, strings.HasPrefix(cmd.usage, name), name)
		assert.NotNil(t, cmd.run, name)
	}
}

func TestDescribe(t *testing.T) {
	plain := errors.New("boom")
	assert.Same(t, plain, describe(plain))

	err := describe(&validation.Error{Fields: form.Errors{"phone": "must be 10 digits", "password": "is required"}})
	assert.Equal(t, "invalid input:\n  password: is required\n  phone: must be 10 digits", err.Error())
}

func TestLines(t *testing.T) {
	in := lines(context.Background(), strings.NewReader("a\n\nd\n"))
	var got []string
	for l := range in {
		got = append(got, l)
	}
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "", "d"}, got)
}
