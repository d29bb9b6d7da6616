package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"marketing-api/internal/config"
	"marketing-api/internal/events"
	"marketing-api/internal/util"
)

// chConn is the part of driver.Conn this client uses.
type chConn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Ping(ctx context.Context) error
	Close() error
}

// ClickHouseClient appends form events to an analytics table.
type ClickHouseClient struct {
	conn   chConn
	config *config.ClickhouseConfig
	mu     sync.RWMutex
}

func NewClickHouseClient(cfg *config.Config, logger *zap.Logger) (*ClickHouseClient, error) {
	chConfig := cfg.Clickhouse

	opts := &ch.Options{
		Addr: []string{extractHostPort(chConfig.URL)},
		Auth: ch.Auth{
			Username: chConfig.Username,
			Password: chConfig.Password,
			Database: chConfig.Database,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: ch.ConnOpenInOrder,
	}

	if cfg.IsProduction() || strings.HasPrefix(chConfig.URL, "https://") {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: extractHostname(chConfig.URL),
		}
		if caCertPath := os.Getenv("CLICKHOUSE_CA_FILE"); caCertPath != "" {
			caCert, err := os.ReadFile(caCertPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read ClickHouse CA file: %w", err)
			}
			caCertPool := x509.NewCertPool()
			if !caCertPool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("failed to append CA cert")
			}
			tlsConfig.RootCAs = caCertPool
		}
		opts.TLS = tlsConfig
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	c := &ClickHouseClient{conn: conn, config: &chConfig}
	if err := c.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("ClickHouse client initialized",
		zap.String("url", chConfig.URL),
		zap.String("database", chConfig.Database),
		zap.String("table", chConfig.Table),
		zap.Bool("tls_enabled", opts.TLS != nil),
	)
	return c, nil
}

func (c *ClickHouseClient) table() string {
	return c.config.Database + "." + c.config.Table
}

// EnsureSchema creates the events table when it does not exist.
func (c *ClickHouseClient) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID,
	form LowCardinality(String),
	outcome LowCardinality(String),
	email String,
	ip String,
	user_agent String,
	occurred_at DateTime64(3, 'UTC'),
	attributes Map(String, String)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(occurred_at)
ORDER BY (form, occurred_at)`, c.table())

	if err := c.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create ClickHouse table %s: %w", c.table(), err)
	}
	return nil
}

func (c *ClickHouseClient) Exec(ctx context.Context, query string, args ...any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn.Exec(ctx, query, args...)
}

func (c *ClickHouseClient) Name() string {
	return "clickhouse"
}

// Publish implements events.Sink.
func (c *ClickHouseClient) Publish(ctx context.Context, e events.Event) error {
	attrs := e.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (id, form, outcome, email, ip, user_agent, occurred_at, attributes) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		c.table(),
	)
	if err := c.Exec(ctx, query,
		e.ID, string(e.Form), string(e.Outcome), e.Email, e.IP, e.UserAgent, e.OccurredAt, attrs,
	); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (c *ClickHouseClient) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn.Ping(ctx)
}

func (c *ClickHouseClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			util.Error("Failed to close ClickHouse connection", zap.Error(err))
			return err
		}
		util.Info("ClickHouse connection closed")
	}
	return nil
}

// extractHostPort strips the scheme and applies the native-protocol default
// port when none is given.
func extractHostPort(url string) string {
	cleanURL := strings.TrimPrefix(url, "http://")
	cleanURL = strings.TrimPrefix(cleanURL, "https://")
	cleanURL = strings.TrimPrefix(cleanURL, "clickhouse://")
	cleanURL = strings.TrimSuffix(cleanURL, "/")
	if !strings.Contains(cleanURL, ":") {
		if strings.HasPrefix(url, "https://") {
			return cleanURL + ":9440"
		}
		return cleanURL + ":9000"
	}
	return cleanURL
}

func extractHostname(url string) string {
	return strings.Split(extractHostPort(url), ":")[0]
}
