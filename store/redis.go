package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/waivern/orchestrator/types"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// URL is a redis:// connection URL, e.g. "redis://localhost:6379/0".
	URL string
	// KeyPrefix namespaces all keys this store writes (default "waivern").
	KeyPrefix string
}

// Redis persists the same logical (run_id, artifact_id) keyspace onto
// Redis, encoding values with msgpack (denser than JSON for high
// artifact-churn runs). Run enumeration is backed by a set per prefix
// rather than a key-space scan, so ListRuns stays cheap regardless of
// how many artifacts a run has accumulated.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed store from a connection URL.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis store requires a URL")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, storeErr("new_redis", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "waivern"
	}
	return &Redis{client: redis.NewClient(opts), prefix: prefix}, nil
}

func (r *Redis) runsSetKey() string {
	return strings.Join([]string{r.prefix, "runs"}, ":")
}

func (r *Redis) artifactsSetKey(runID string) string {
	return strings.Join([]string{r.prefix, "run", runID, "artifacts"}, ":")
}

func (r *Redis) artifactKey(runID, id string) string {
	return strings.Join([]string{r.prefix, "run", runID, "artifact", id}, ":")
}

func (r *Redis) stateKey(runID string) string {
	return strings.Join([]string{r.prefix, "run", runID, "state"}, ":")
}

func (r *Redis) metaKey(runID string) string {
	return strings.Join([]string{r.prefix, "run", runID, "meta"}, ":")
}

func encodeMsgpack(v any) ([]byte, error) { return msgpack.Marshal(v) }

func decodeMsgpack(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

func (r *Redis) SaveArtifact(ctx context.Context, runID, id string, msg types.Message) error {
	if err := SanitizeKey(runID); err != nil {
		return storeErr("save_artifact", err)
	}
	if err := SanitizeKey(id); err != nil {
		return storeErr("save_artifact", err)
	}
	data, err := encodeMsgpack(msg)
	if err != nil {
		return storeErr("save_artifact", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.artifactKey(runID, id), data, 0)
	pipe.SAdd(ctx, r.artifactsSetKey(runID), id)
	pipe.SAdd(ctx, r.runsSetKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("save_artifact", err)
	}
	return nil
}

func (r *Redis) GetArtifact(ctx context.Context, runID, id string) (types.Message, error) {
	data, err := r.client.Get(ctx, r.artifactKey(runID, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Message{}, notFound(runID, id)
		}
		return types.Message{}, storeErr("get_artifact", err)
	}
	var msg types.Message
	if err := decodeMsgpack(data, &msg); err != nil {
		return types.Message{}, storeErr("get_artifact", err)
	}
	return msg, nil
}

func (r *Redis) ArtifactExists(ctx context.Context, runID, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.artifactKey(runID, id)).Result()
	if err != nil {
		return false, storeErr("artifact_exists", err)
	}
	return n > 0, nil
}

func (r *Redis) DeleteArtifact(ctx context.Context, runID, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.artifactKey(runID, id))
	pipe.SRem(ctx, r.artifactsSetKey(runID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("delete_artifact", err)
	}
	return nil
}

func (r *Redis) ListArtifacts(ctx context.Context, runID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.artifactsSetKey(runID)).Result()
	if err != nil {
		return nil, storeErr("list_artifacts", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Redis) ClearArtifacts(ctx context.Context, runID string) error {
	ids, err := r.client.SMembers(ctx, r.artifactsSetKey(runID)).Result()
	if err != nil {
		return storeErr("clear_artifacts", err)
	}
	if len(ids) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, r.artifactKey(runID, id))
	}
	pipe.Del(ctx, r.artifactsSetKey(runID))
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("clear_artifacts", err)
	}
	return nil
}

func (r *Redis) SaveExecutionState(ctx context.Context, runID string, state types.ExecutionState) error {
	data, err := encodeMsgpack(state)
	if err != nil {
		return storeErr("save_execution_state", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.stateKey(runID), data, 0)
	pipe.SAdd(ctx, r.runsSetKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("save_execution_state", err)
	}
	return nil
}

func (r *Redis) LoadExecutionState(ctx context.Context, runID string) (types.ExecutionState, error) {
	data, err := r.client.Get(ctx, r.stateKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.ExecutionState{}, notFound(runID, "_system/state")
		}
		return types.ExecutionState{}, storeErr("load_execution_state", err)
	}
	var state types.ExecutionState
	if err := decodeMsgpack(data, &state); err != nil {
		return types.ExecutionState{}, storeErr("load_execution_state", err)
	}
	return state, nil
}

func (r *Redis) SaveRunMetadata(ctx context.Context, runID string, meta types.RunMetadata) error {
	data, err := encodeMsgpack(meta)
	if err != nil {
		return storeErr("save_run_metadata", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.metaKey(runID), data, 0)
	pipe.SAdd(ctx, r.runsSetKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("save_run_metadata", err)
	}
	return nil
}

func (r *Redis) LoadRunMetadata(ctx context.Context, runID string) (types.RunMetadata, error) {
	data, err := r.client.Get(ctx, r.metaKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.RunMetadata{}, notFound(runID, "_system/run")
		}
		return types.RunMetadata{}, storeErr("load_run_metadata", err)
	}
	var meta types.RunMetadata
	if err := decodeMsgpack(data, &meta); err != nil {
		return types.RunMetadata{}, storeErr("load_run_metadata", err)
	}
	return meta, nil
}

func (r *Redis) ListRuns(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.runsSetKey()).Result()
	if err != nil {
		return nil, storeErr("list_runs", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return storeErr("close", err)
	}
	return nil
}
