package error

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type exitErr struct{ code int }

func (e *exitErr) Error() string              { return fmt.Sprintf("exit %d", e.code) }
func (e *exitErr) CalloutFailed() (bool, int) { return true, e.code }

type typeErr struct{ name string }

func (e *typeErr) Error() string                   { return e.name }
func (e *typeErr) UnsupportedType() (bool, string) { return true, e.name }

func TestIsCalloutFailed(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantOk   bool
		wantCode int
	}{
		{name: "nil error"},
		{name: "plain error", err: errors.New("boom")},
		{name: "callout error", err: &exitErr{code: 3}, wantOk: true, wantCode: 3},
		{name: "wrapped with pkg/errors", err: errors.Wrap(&exitErr{code: 2}, "apply"), wantOk: true, wantCode: 2},
		{name: "wrapped with fmt", err: fmt.Errorf("apply: %w", &exitErr{code: 1}), wantOk: true, wantCode: 1},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ok, code := IsCalloutFailed(tc.err)
			assert.Equal(t, tc.wantOk, ok)
			assert.Equal(t, tc.wantCode, code)
		})
	}
}

func TestIsUnsupportedType(t *testing.T) {
	ok, name := IsUnsupportedType(errors.Wrap(&typeErr{name: "chan int"}, "flatten"))
	assert.True(t, ok)
	assert.Equal(t, "chan int", name)

	ok, name = IsUnsupportedType(errors.New("other"))
	assert.False(t, ok)
	assert.Empty(t, name)
}
