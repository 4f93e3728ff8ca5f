package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/require"
)

func TestOptionsMapping(t *testing.T) {
	cfg := ClientConfig{
		Host:        "ch.local",
		Port:        8123,
		Database:    "finrange",
		User:        "svc",
		Password:    "pw",
		UseHTTP:     true,
		MaxExecTime: 90 * time.Second,
		AsyncInsert: true,
	}
	o := options(cfg)
	require.Equal(t, []string{"ch.local:8123"}, o.Addr)
	require.Equal(t, ch.HTTP, o.Protocol)
	require.Equal(t, "finrange", o.Auth.Database)
	require.Equal(t, 90, o.Settings["max_execution_time"])
	require.Equal(t, 1, o.Settings["async_insert"])
	_, waits := o.Settings["wait_for_async_insert"]
	require.False(t, waits)
}
