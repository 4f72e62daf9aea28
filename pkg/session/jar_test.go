package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJarMerge(t *testing.T) {
	j := NewJar()
	assert.Equal(t, "", j.Header())

	n := j.Merge([]string{
		"EXPLORER_SESSION=abc; Path=/; HttpOnly",
		"csrf=t1",
		"not a cookie",
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, "EXPLORER_SESSION=abc; csrf=t1", j.Header())

	j.Merge([]string{"EXPLORER_SESSION=def; Secure", "remember=1"})
	assert.Equal(t, "EXPLORER_SESSION=def; csrf=t1; remember=1", j.Header())
	assert.Equal(t, 3, j.Len())

	v, ok := j.Get("csrf")
	assert.True(t, ok)
	assert.Equal(t, "t1", v)
	_, ok = j.Get("missing")
	assert.False(t, ok)
}

func TestJarSet(t *testing.T) {
	j := NewJar()
	j.Set("a", "1")
	j.Set("b", "2")
	j.Set("a", "3")
	assert.Equal(t, "a=3; b=2", j.Header())
}
