package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	webredis "webchat/internal/adapter/redis"
)

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	for _, addr := range []string{mr.Addr(), "redis://" + mr.Addr()} {
		c, err := webredis.NewClient(context.Background(), addr)
		require.NoError(t, err)
		c.Close()
	}

	_, err := webredis.NewClient(context.Background(), "redis://%zz")
	assert.Error(t, err)
}

func TestBus_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := webredis.NewClient(ctx, mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	bus := webredis.NewBus(client, "webchat:sessions:invalidate")

	got := make(chan string, 1)
	require.NoError(t, bus.Subscribe(ctx, func(url string) { got <- url }))

	require.NoError(t, bus.Publish(ctx, "https://example.com"))

	select {
	case url := <-got:
		assert.Equal(t, "https://example.com", url)
	case <-time.After(2 * time.Second):
		t.Fatal("invalidation not delivered")
	}
}
