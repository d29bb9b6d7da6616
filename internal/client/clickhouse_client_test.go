package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketing-api/internal/config"
	"marketing-api/internal/events"
)

type execCall struct {
	query string
	args  []any
}

type fakeCHConn struct {
	calls []execCall
	err   error
}

func (f *fakeCHConn) Exec(_ context.Context, query string, args ...any) error {
	f.calls = append(f.calls, execCall{query: query, args: args})
	return f.err
}

func (f *fakeCHConn) Ping(context.Context) error { return f.err }
func (f *fakeCHConn) Close() error               { return nil }

func TestClickHouseClient_Publish(t *testing.T) {
	conn := &fakeCHConn{}
	c := &ClickHouseClient{conn: conn, config: &config.ClickhouseConfig{Database: "marketing", Table: "form_events"}}

	e := events.New(events.FormRequestAccess, events.OutcomeFallback)
	e.IP = "192.0.2.10"
	require.NoError(t, c.Publish(context.Background(), e))

	require.Len(t, conn.calls, 1)
	call := conn.calls[0]
	assert.Contains(t, call.query, "INSERT INTO marketing.form_events")
	require.Len(t, call.args, 8)
	assert.Equal(t, e.ID, call.args[0])
	assert.Equal(t, "request_access", call.args[1])
	assert.Equal(t, "fallback", call.args[2])
	assert.Equal(t, "192.0.2.10", call.args[4])
	assert.Equal(t, map[string]string{}, call.args[7])
}

func TestClickHouseClient_EnsureSchemaError(t *testing.T) {
	conn := &fakeCHConn{err: errors.New("ACCESS_DENIED")}
	c := &ClickHouseClient{conn: conn, config: &config.ClickhouseConfig{Database: "marketing", Table: "form_events"}}

	err := c.EnsureSchema(context.Background())
	assert.ErrorContains(t, err, "marketing.form_events")
	assert.Contains(t, conn.calls[0].query, "CREATE TABLE IF NOT EXISTS marketing.form_events")
}

func TestExtractHostPort(t *testing.T) {
	assert.Equal(t, "ch.internal:9000", extractHostPort("http://ch.internal"))
	assert.Equal(t, "ch.internal:9440", extractHostPort("https://ch.internal"))
	assert.Equal(t, "ch.internal:9001", extractHostPort("clickhouse://ch.internal:9001/"))
	assert.Equal(t, "ch.internal", extractHostname("https://ch.internal"))
}
