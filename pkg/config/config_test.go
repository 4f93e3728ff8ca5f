package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const minimal = `
contracts:
  - symbol: ES
    tick_size: 0.25
    weekly_iv: 0.16
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)
	require.Equal(t, "development", c.Environment)
	require.Equal(t, 8080, c.Server.Port)
	require.Equal(t, "America/New_York", c.Exchange.Timezone)
	require.Equal(t, 17, c.Exchange.DailyRunHour)
	require.Equal(t, time.Hour, c.Scheduler.CheckInterval)
	require.True(t, c.Scheduler.RunOnStartup)
	require.Equal(t, "standard", c.Scheduler.Model)
	require.Equal(t, "memory", c.Storage.Backend)
	require.Equal(t, "index", c.Contracts[0].Class)
	require.Equal(t, []string{"localhost:9092"}, c.Kafka.Brokers)
	require.Equal(t, -1, c.Kafka.RequiredAcks)
}

func TestParseKeepsExplicitFalse(t *testing.T) {
	c, err := Parse([]byte(minimal + "scheduler:\n  run_on_startup: false\n"))
	require.NoError(t, err)
	require.False(t, c.Scheduler.RunOnStartup)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no contracts":   "environment: test\n",
		"zero tick":      "contracts:\n  - symbol: ES\n    tick_size: 0\n",
		"bad class":      "contracts:\n  - symbol: ES\n    tick_size: 1\n    class: fx\n",
		"bad model":      minimal + "scheduler:\n  model: heston\n",
		"bad backend":    minimal + "storage:\n  backend: sqlite\n",
		"duplicate":      minimal + "  - symbol: ES\n    tick_size: 0.25\n",
		"bad clock time": minimal + "exchange:\n  session_open: \"9h\"\n",
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		require.Error(t, err, name)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)
	env := map[string]string{
		"FINNHUB_API_KEY": "k",
		"STORAGE_BACKEND": "postgres",
		"KAFKA_BROKERS":   "a:9092,b:9092",
		"REDIS_ADDR":      "cache:6380",
	}
	c.applyEnv(func(k string) string { return env[k] })
	require.Equal(t, "k", c.Quotes.APIKey)
	require.Equal(t, "postgres", c.Storage.Backend)
	require.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	require.True(t, c.Kafka.Enabled)
	require.Equal(t, "cache:6380", c.RedisAddr())
	require.True(t, c.Redis.Enabled)
}

func TestClockTime(t *testing.T) {
	h, m, err := ClockTime("09:30")
	require.NoError(t, err)
	require.Equal(t, 9, h)
	require.Equal(t, 30, m)
	_, _, err = ClockTime("25:00")
	require.Error(t, err)
}
