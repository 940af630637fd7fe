package eventlog

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	sagaerr "sagaforge/errors"
	"sagaforge/message"
)

// RedisConfig is the typed configuration for the Redis Streams backend.
type RedisConfig struct {
	Client      redis.UniversalClient
	Addr        string
	Username    string
	Password    string
	DB          int
	KeyPrefix   string // default "saga:"
	ChildPrefix string // default "saga:children:", a SET per parentSagaId
}

// RedisLog is a durable Log backend on Redis Streams. Each saga owns a
// stream keyed KeyPrefix+sagaID; appends are XADD and getMessages is an
// XRANGE over the full stream. Streams have no existence/uniqueness notion
// of their own, so startSaga's AlreadyExists guarantee is enforced with a
// companion SETNX key, and getChildSagaIds is served by a secondary SET
// index the log maintains on every StartSaga — the store never has to
// inspect stream payloads to answer either query.
type RedisLog struct {
	client      redis.UniversalClient
	keyPrefix   string
	childPrefix string
}

// NewRedisLog constructs a RedisLog from cfg, applying KeyPrefix/ChildPrefix
// defaults and opening a client from Addr/Username/Password/DB if Client is
// not supplied.
func NewRedisLog(cfg RedisConfig) *RedisLog {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "saga:"
	}
	if cfg.ChildPrefix == "" {
		cfg.ChildPrefix = "saga:children:"
	}

	client := cfg.Client
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	return &RedisLog{client: client, keyPrefix: cfg.KeyPrefix, childPrefix: cfg.ChildPrefix}
}

func (r *RedisLog) streamKey(sagaID string) string { return r.keyPrefix + sagaID }
func (r *RedisLog) existsKey(sagaID string) string { return r.keyPrefix + sagaID + ":exists" }
func (r *RedisLog) activeSetKey() string           { return r.keyPrefix + "active" }
func (r *RedisLog) childSetKey(parentSagaID string) string {
	return r.childPrefix + parentSagaID
}

func (r *RedisLog) StartSaga(ctx context.Context, sagaID string, job any, parentSagaID, parentTaskID string) (message.Message, error) {
	ok, err := r.client.SetNX(ctx, r.existsKey(sagaID), 1, 0).Result()
	if err != nil {
		return message.Message{}, sagaerr.NewPersistenceFailure(sagaID, err)
	}
	if !ok {
		return message.Message{}, sagaerr.NewAlreadyExists(sagaID)
	}

	msg := message.NewStartSaga(sagaID, job, parentSagaID, parentTaskID)
	values, err := encodeMessage(msg)
	if err != nil {
		return message.Message{}, sagaerr.NewPersistenceFailure(sagaID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{Stream: r.streamKey(sagaID), Values: values})
	pipe.SAdd(ctx, r.activeSetKey(), sagaID)
	if parentSagaID != "" {
		pipe.SAdd(ctx, r.childSetKey(parentSagaID), sagaID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return message.Message{}, sagaerr.NewPersistenceFailure(sagaID, err)
	}

	return msg, nil
}

func (r *RedisLog) LogMessage(ctx context.Context, msg message.Message) error {
	exists, err := r.client.Exists(ctx, r.existsKey(msg.SagaID)).Result()
	if err != nil {
		return sagaerr.NewPersistenceFailure(msg.SagaID, err)
	}
	if exists == 0 {
		return sagaerr.NewNotFound(msg.SagaID)
	}

	values, err := encodeMessage(msg)
	if err != nil {
		return sagaerr.NewPersistenceFailure(msg.SagaID, err)
	}

	if err := r.client.XAdd(ctx, &redis.XAddArgs{Stream: r.streamKey(msg.SagaID), Values: values}).Err(); err != nil {
		return sagaerr.NewPersistenceFailure(msg.SagaID, err)
	}
	return nil
}

func (r *RedisLog) GetMessages(ctx context.Context, sagaID string) ([]message.Message, error) {
	exists, err := r.client.Exists(ctx, r.existsKey(sagaID)).Result()
	if err != nil {
		return nil, sagaerr.NewPersistenceFailure(sagaID, err)
	}
	if exists == 0 {
		return nil, sagaerr.NewNotFound(sagaID)
	}

	entries, err := r.client.XRange(ctx, r.streamKey(sagaID), "-", "+").Result()
	if err != nil {
		return nil, sagaerr.NewPersistenceFailure(sagaID, err)
	}

	out := make([]message.Message, 0, len(entries))
	for _, entry := range entries {
		m, err := decodeMessage(entry)
		if err != nil {
			return nil, sagaerr.NewPersistenceFailure(sagaID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *RedisLog) GetActiveSagaIds(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.activeSetKey()).Result()
	if err != nil {
		return nil, sagaerr.NewPersistenceFailure("", err)
	}
	return ids, nil
}

func (r *RedisLog) GetChildSagaIds(ctx context.Context, parentSagaID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.childSetKey(parentSagaID)).Result()
	if err != nil {
		return nil, sagaerr.NewPersistenceFailure(parentSagaID, err)
	}
	return ids, nil
}

func (r *RedisLog) DeleteSaga(ctx context.Context, sagaID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.streamKey(sagaID))
	pipe.Del(ctx, r.existsKey(sagaID))
	pipe.SRem(ctx, r.activeSetKey(), sagaID)
	if _, err := pipe.Exec(ctx); err != nil {
		return sagaerr.NewPersistenceFailure(sagaID, err)
	}
	return nil
}

func encodeMessage(m message.Message) (map[string]any, error) {
	data, err := json.Marshal(m.Data)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":             m.ID,
		"sagaId":         m.SagaID,
		"type":           string(m.Type),
		"taskId":         m.TaskID,
		"data":           string(data),
		"metadata":       string(metadata),
		"parentSagaId":   m.ParentSagaID,
		"parentTaskId":   m.ParentTaskID,
		"timestampNanos": strconv.FormatInt(m.Timestamp.UnixNano(), 10),
	}, nil
}

func decodeMessage(entry redis.XMessage) (message.Message, error) {
	str := func(key string) string {
		v, _ := entry.Values[key].(string)
		return v
	}

	var data any
	if raw := str("data"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return message.Message{}, err
		}
	}
	var metadata map[string]any
	if raw := str("metadata"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return message.Message{}, err
		}
	}

	var timestamp time.Time
	if raw := str("timestampNanos"); raw != "" {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return message.Message{}, err
		}
		timestamp = time.Unix(0, nanos).UTC()
	}

	return message.Message{
		ID:           str("id"),
		SagaID:       str("sagaId"),
		Type:         message.Type(str("type")),
		TaskID:       str("taskId"),
		Data:         data,
		Metadata:     metadata,
		ParentSagaID: str("parentSagaId"),
		ParentTaskID: str("parentTaskId"),
		Timestamp:    timestamp,
	}, nil
}

var _ Log = (*RedisLog)(nil)
