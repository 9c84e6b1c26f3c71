package multierror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendBuildsAggregateError(t *testing.T) {
	r := require.New(t)

	e1 := errors.New("first")
	e2 := errors.New("second")

	err := Append(nil, e1)
	err = Append(err, e2)

	me, ok := err.(*MultiError)
	r.True(ok)
	r.Equal([]error{e1, e2}, me.Errors())
	r.True(me.Is(e1))
	r.True(me.Is(e2))
}

func TestAppendWithNoErrorsReturnsInputUnchanged(t *testing.T) {
	r := require.New(t)
	r.Nil(Append(nil))

	base := errors.New("base")
	r.Equal(base, Append(base))
}
