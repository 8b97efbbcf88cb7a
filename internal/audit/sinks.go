package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"portal-auth/internal/client"
	"portal-auth/internal/models"
	"portal-auth/internal/util"

	"go.uber.org/zap"
)

// KafkaSink publishes each event to the auth events topic, keyed by session.
type KafkaSink struct {
	producer *client.KafkaProducer
	topic    string
}

func NewKafkaSink(producer *client.KafkaProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, events []models.AuthEvent) error {
	var errs []error
	for _, evt := range events {
		value, err := json.Marshal(evt)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		headers := map[string]string{"event_type": string(evt.EventType)}
		if err := s.producer.ProduceMessage(ctx, s.topic, []byte(evt.SessionID), value, headers); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SearchSink indexes events for security investigations.
type SearchSink struct {
	es    *client.ESClient
	index string
}

func NewSearchSink(es *client.ESClient, index string) *SearchSink {
	return &SearchSink{es: es, index: index}
}

func (s *SearchSink) Name() string { return "elasticsearch" }

func (s *SearchSink) Write(ctx context.Context, events []models.AuthEvent) error {
	var errs []error
	for _, evt := range events {
		if err := s.es.IndexDocument(ctx, s.index, evt.EventID, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AnalyticsSink batch-inserts events into ClickHouse.
type AnalyticsSink struct {
	ch    *client.ClickHouseClient
	table string
	query string
}

func NewAnalyticsSink(ch *client.ClickHouseClient, table string) *AnalyticsSink {
	return &AnalyticsSink{
		ch:    ch,
		table: table,
		query: fmt.Sprintf(`INSERT INTO %s (event_id, event_bucket, event_date, event_time, event_type,
			session_id, customer_id, ip_address, outcome, attempts, state)`, table),
	}
}

func (s *AnalyticsSink) Name() string { return "clickhouse" }

// EnsureTable creates the events table when it does not exist yet.
func (s *AnalyticsSink) EnsureTable(ctx context.Context) error {
	return s.ch.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		event_id String,
		event_bucket Int32,
		event_date String,
		event_time DateTime64(3),
		event_type LowCardinality(String),
		session_id String,
		customer_id String,
		ip_address String,
		outcome LowCardinality(String),
		attempts Int32,
		state LowCardinality(String)
	) ENGINE = MergeTree
	PARTITION BY event_date
	ORDER BY (event_bucket, event_time)`, s.table))
}

func (s *AnalyticsSink) Write(ctx context.Context, events []models.AuthEvent) error {
	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		rows = append(rows, []interface{}{
			e.EventID, int32(e.EventBucket), e.EventDate, e.EventTime, string(e.EventType),
			e.SessionID, e.CustomerID, e.IPAddress, string(e.Outcome), int32(e.Attempts), e.State,
		})
	}
	return s.ch.BatchInsert(ctx, s.query, rows)
}

// LogSink writes events to the application log. It is used when no external
// sink is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, events []models.AuthEvent) error {
	for _, e := range events {
		s.logger.Info("Auth event",
			zap.String("event_type", string(e.EventType)),
			util.SessionID(e.SessionID),
			zap.String("outcome", string(e.Outcome)),
			zap.Int("attempts", e.Attempts),
			zap.String("state", e.State),
		)
	}
	return nil
}
