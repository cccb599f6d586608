package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	cfg := ClientConfig{Host: "ch", Port: 9000, Database: "macro", User: "u", Password: "p"}
	assert.Equal(t, "clickhouse://u:p@ch:9000/macro", buildDSN(cfg))

	for _, opt := range []ClientOption{
		WithTimeouts(5*time.Second, 30*time.Second, 0),
		WithMaxExecutionTime(90 * time.Second),
		WithHTTP(true),
	} {
		opt(&cfg)
	}
	assert.Equal(t,
		"clickhouse+http://u:p@ch:9000/macro?dial_timeout=5s&read_timeout=30s&max_execution_time=90",
		buildDSN(cfg))
}

func TestNewClientNeedsHost(t *testing.T) {
	_, err := NewClient(WithPort(9000))
	assert.Error(t, err)
}
