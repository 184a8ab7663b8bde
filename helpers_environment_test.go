// scriptcomplete/helpers_environment_test.go
package scriptcomplete

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvironment_LookupAndShadowing(t *testing.T) {
	parent := NewEnvironment(nil).Put("key1", "v1").Put("shared", "parent")
	child := NewEnvironment(parent).Put("key2", "v2").Put("shared", "child")

	tests := []struct {
		name      string
		lookup    string
		wantValue any
		wantOK    bool
	}{
		{"Local", "key2", "v2", true},
		{"From parent", "key1", "v1", true},
		{"Local shadows parent", "shared", "child", true},
		{"Missing", "nope", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := child.Lookup(tt.lookup)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantValue, got)
		})
	}

	assert.Same(t, parent, child.Parent())
	assert.Nil(t, parent.Parent())
}

func TestEnvironment_Names(t *testing.T) {
	parent := NewEnvironment(nil).Put("key1", "v1").Put("shared", "parent")
	child := NewEnvironment(parent).Put("key2", "v2").Put("shared", "child")

	assert.Equal(t, []string{"key2", "shared", "key1"}, child.Names())
	assert.Equal(t, []string{"key2", "shared"}, child.LocalNames())
	assert.Equal(t, []string{"key1", "shared"}, parent.Names())
}

func TestEnvironment_PutReplacesWithoutReordering(t *testing.T) {
	env := NewEnvironment(nil).Put("a", 1).Put("b", 2).Put("a", 3)
	assert.Equal(t, []string{"a", "b"}, env.Names())
	v, _ := env.Lookup("a")
	assert.Equal(t, 3, v)
}
