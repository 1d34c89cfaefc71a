package ioutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type closer struct {
	err    error
	closed bool
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestCheckClose(t *testing.T) {
	c := &closer{}

	var err error
	func() {
		defer CheckClose(c, &err)
	}()

	assert.True(t, c.closed)
	assert.NoError(t, err)
}

func TestCheckCloseError(t *testing.T) {
	cerr := errors.New("close error")
	c := &closer{err: cerr}

	var err error
	func() {
		defer CheckClose(c, &err)
	}()

	assert.ErrorIs(t, err, cerr)
}

func TestCheckCloseKeepsFirstError(t *testing.T) {
	c := &closer{err: errors.New("close error")}

	err := errors.New("first error")
	func() {
		defer CheckClose(c, &err)
	}()

	assert.Equal(t, "first error", err.Error())
}

func TestNewReadCloser(t *testing.T) {
	c := &closer{}
	rc := NewReadCloser(strings.NewReader("foo"), c)

	b := make([]byte, 3)
	n, err := rc.Read(b)
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "foo", string(b))

	assert.NoError(t, rc.Close())
	assert.True(t, c.closed)
}
