package exithook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunOrderAndOnce(t *testing.T) {
	var order []string
	Register("first", func() { order = append(order, "first") })
	Register("second", func() { order = append(order, "second") })
	require.Equal(t, 2, Len())

	Run()
	require.Equal(t, []string{"second", "first"}, order)
	require.Zero(t, Len())

	Run()
	require.Len(t, order, 2)
}

func TestRemove(t *testing.T) {
	var ran []string
	remove := Register("removed", func() { ran = append(ran, "removed") })
	Register("kept", func() { ran = append(ran, "kept") })

	remove()
	remove()
	Run()
	require.Equal(t, []string{"kept"}, ran)
}

func TestPanickingHook(t *testing.T) {
	ran := false
	Register("after", func() { ran = true })
	Register("boom", func() { panic("boom") })

	require.NotPanics(t, Run)
	require.True(t, ran)
}
