package security

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver map[string][]net.IPAddr

func (r staticResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	addrs, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

func TestCheckOutboundURLBlocksLocalTargets(t *testing.T) {
	targets := []string{
		"http://127.0.0.1/banner.png",
		"http://localhost:8080/banner.png",
		"http://10.0.0.5",
		"http://192.168.1.10",
		"http://[::1]",
		"http://metadata.internal/latest",
		"file:///etc/passwd",
	}

	for _, target := range targets {
		err := CheckOutboundURL(context.Background(), target, staticResolver{})
		assert.Error(t, err, target)
	}
}

func TestCheckOutboundURLAllowsPublicTargets(t *testing.T) {
	resolver := staticResolver{
		"cdn.example.com": {{IP: net.ParseIP("93.184.216.34")}},
	}

	require.NoError(t, CheckOutboundURL(context.Background(), "https://93.184.216.34/a.png", resolver))
	require.NoError(t, CheckOutboundURL(context.Background(), "https://cdn.example.com/a.png", resolver))
}

func TestCheckOutboundURLBlocksHostResolvingPrivate(t *testing.T) {
	resolver := staticResolver{
		"sneaky.example.com": {{IP: net.ParseIP("10.1.2.3")}},
	}

	err := CheckOutboundURL(context.Background(), "https://sneaky.example.com/a.png", resolver)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlockedTarget))
}

func TestCheckOutboundURLReportsResolutionFailure(t *testing.T) {
	err := CheckOutboundURL(context.Background(), "https://unknown.example.com", staticResolver{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBlockedTarget))
}
