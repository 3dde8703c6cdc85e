package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortOf(t *testing.T) {
	assert.Equal(t, ":8080", portOf("[::]:8080"))
	assert.Equal(t, ":41234", portOf("127.0.0.1:41234"))
	assert.Equal(t, "", portOf("localhost"))
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	f := cmd.Flags()

	addr, err := f.GetString("addr")
	assert.NoError(t, err)
	assert.Equal(t, ":8080", addr)

	loopback, err := f.GetBool("loopback")
	assert.NoError(t, err)
	assert.True(t, loopback)
}
