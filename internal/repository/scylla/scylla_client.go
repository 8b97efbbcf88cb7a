package scylla

import (
	"context"
	"fmt"
	"time"

	"portal-auth/internal/config"
	"portal-auth/internal/util"

	"github.com/gocql/gocql"
	"go.uber.org/zap"
)

const consentTableDDL = `
CREATE TABLE IF NOT EXISTS consent_records (
    customer_id text,
    recorded_at timestamp,
    consent_id text,
    form_id text,
    accepted boolean,
    PRIMARY KEY ((customer_id), recorded_at, consent_id)
) WITH CLUSTERING ORDER BY (recorded_at DESC, consent_id ASC)`

// Statements holds the CQL used by the repositories.
type Statements struct {
	InsertConsent string
	ListConsents  string
}

type ScyllaClient struct {
	Session    *gocql.Session
	Statements Statements
}

func NewScyllaClient(cfg config.ScyllaConfig) (*ScyllaClient, error) {
	cluster := gocql.NewCluster(cfg.Nodes...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 2
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
		NumRetries: 3,
	}

	if cfg.UseTLS {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 cfg.CAPath,
			EnableHostVerification: true,
		}
	}

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		Statements: Statements{
			InsertConsent: `INSERT INTO consent_records (customer_id, recorded_at, consent_id, form_id, accepted)
                VALUES (?, ?, ?, ?, ?)`,
			ListConsents: `SELECT consent_id, form_id, customer_id, accepted, recorded_at
                FROM consent_records WHERE customer_id = ? LIMIT 50`,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := session.Query(consentTableDDL).WithContext(ctx).Exec(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to ensure consent table: %w", err)
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", cfg.Nodes),
		zap.String("keyspace", cfg.Keyspace))

	return client, nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

// ExecuteWithRetry retries transient write failures with a linear backoff.
func (s *ScyllaClient) ExecuteWithRetry(ctx context.Context, query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if lastErr = query.WithContext(ctx).Exec(); lastErr == nil {
			return nil
		}
		if i == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
		}
	}
	return lastErr
}
