package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "memory", c.Store.Backend)
	assert.Equal(t, []string{"twse", "otc"}, c.Collect.Markets)
	assert.Equal(t, 30*time.Second, c.Collect.QueryTimeout)
	assert.Equal(t, uint(5), c.Collect.RetryTries)
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
server:
  port: 9090
store:
  backend: clickhouse
collect:
  markets: [twse]
  query_timeout: 5s
  static_ids:
    twse:
      stocks: ["2330", "2317"]
`))
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "clickhouse", c.Store.Backend)
	assert.Equal(t, []string{"twse"}, c.Collect.Markets)
	assert.Equal(t, 5*time.Second, c.Collect.QueryTimeout)
	assert.Equal(t, []string{"2330", "2317"}, c.Collect.StaticIDs["twse"].Stocks)
	assert.Equal(t, "rankmap", c.RankMap.Prefix)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"backend": "store:\n  backend: sqlite\n",
		"market":  "collect:\n  markets: [nyse]\n",
		"port":    "server:\n  port: 70000\n",
		"yaml":    "server: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":          "7000",
		"STORE_BACKEND": "clickhouse",
		"KAFKA_BROKERS": "k1:9092,k2:9092",
	}
	c := Default()
	c.applyEnv(func(k string) string { return env[k] })
	assert.Equal(t, 7000, c.Server.Port)
	assert.Equal(t, "clickhouse", c.Store.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
}
