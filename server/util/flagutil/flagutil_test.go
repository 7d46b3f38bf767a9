package flagutil

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringSliceFlag(t *testing.T) {
	flags := flag.NewFlagSet("test", flag.ContinueOnError)

	var foo StringSliceFlag
	flags.Var(&foo, "foo", "A list of foos")
	assert.Equal(t, "", foo.String())

	require := func(err error) {
		assert.NoError(t, err)
	}

	require(flags.Set("foo", "foo0,foo1"))
	require(flags.Set("foo", "foo2"))
	assert.Equal(t, StringSliceFlag{"foo0", "foo1", "foo2"}, foo)
	assert.Equal(t, "foo0,foo1,foo2", foo.String())
}

func TestStringSliceTopLevel(t *testing.T) {
	old := flag.CommandLine
	defer func() { flag.CommandLine = old }()
	flag.CommandLine = flag.NewFlagSet("test", flag.ContinueOnError)

	bar := StringSlice("bar", "A list of bars")
	assert.Equal(t, &StringSliceFlag{}, bar)
	assert.NoError(t, flag.CommandLine.Set("bar", "bar0,bar1"))
	assert.Equal(t, StringSliceFlag{"bar0", "bar1"}, *bar)
}
