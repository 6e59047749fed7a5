package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandPathExpandsHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	got := ExpandPath("~/data")
	assert.Equal(t, filepath.Clean("/home/tester/data"), got)
}

func TestExpandPathLeavesAbsolutePathAlone(t *testing.T) {
	assert.Equal(t, "/var/lib/agentcore", ExpandPath("/var/lib/agentcore"))
}

func TestConfigDataDirExpandsConfiguredDirectory(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	c := &Config{DataDirectory: "~/.local/share/agentcore"}
	assert.Equal(t, filepath.Clean("/home/tester/.local/share/agentcore"), c.DataDir())
}
