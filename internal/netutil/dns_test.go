package netutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReverseLookupNonIP(t *testing.T) {
	// hostnames and garbage are not reverse-resolved at all
	assert.Equal(t, "", ReverseLookup(context.Background(), "example.com"))
	assert.Equal(t, "", ReverseLookup(context.Background(), ""))
	assert.Equal(t, "", ReverseLookup(context.Background(), "not an address"))
}

func TestResolveToIPLiteralPassthrough(t *testing.T) {
	assert.Equal(t, "127.0.0.1", ResolveToIP(context.Background(), "127.0.0.1"))
	assert.Equal(t, "::1", ResolveToIP(context.Background(), "::1"))
}
