package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path"
	"sort"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	enginetypes "github.com/waivern/orchestrator/types"
)

// s3API is the slice of the S3 client the store actually calls, so tests
// can substitute a fake without standing up a bucket.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// S3 persists the same run-scoped key layout as Filesystem
// (<prefix>/runs/<run_id>/artifacts/<id>.json, .../_system/{state,run}.json)
// onto an S3-compatible bucket, so a run's artifacts can be shared across
// hosts without standing up a distributed executor.
type S3 struct {
	client s3API
	bucket string
	prefix string
}

// NewS3 builds an S3-backed store using the default AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	optFns := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, storeErr("new_s3", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return newS3WithClient(client, cfg), nil
}

func newS3WithClient(client s3API, cfg S3Config) *S3 {
	return &S3{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}
}

func (s *S3) key(parts ...string) string {
	all := append([]string{s.prefix}, parts...)
	return strings.TrimPrefix(path.Join(all...), "/")
}

func (s *S3) artifactKey(runID, id string) (string, error) {
	if err := SanitizeKey(runID); err != nil {
		return "", err
	}
	if err := SanitizeKey(id); err != nil {
		return "", err
	}
	return s.key("runs", runID, "artifacts", id+".json"), nil
}

func (s *S3) systemKey(runID, name string) (string, error) {
	if err := SanitizeKey(runID); err != nil {
		return "", err
	}
	return s.key("runs", runID, "_system", name), nil
}

func (s *S3) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *S3) getJSON(ctx context.Context, key string, v any) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return err
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func isNotFoundS3(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}

func (s *S3) SaveArtifact(ctx context.Context, runID, id string, msg enginetypes.Message) error {
	key, err := s.artifactKey(runID, id)
	if err != nil {
		return storeErr("save_artifact", err)
	}
	if err := s.putJSON(ctx, key, msg); err != nil {
		return storeErr("save_artifact", err)
	}
	return nil
}

func (s *S3) GetArtifact(ctx context.Context, runID, id string) (enginetypes.Message, error) {
	key, err := s.artifactKey(runID, id)
	if err != nil {
		return enginetypes.Message{}, storeErr("get_artifact", err)
	}
	var msg enginetypes.Message
	if err := s.getJSON(ctx, key, &msg); err != nil {
		if isNotFoundS3(err) {
			return enginetypes.Message{}, notFound(runID, id)
		}
		return enginetypes.Message{}, storeErr("get_artifact", err)
	}
	return msg, nil
}

func (s *S3) ArtifactExists(ctx context.Context, runID, id string) (bool, error) {
	key, err := s.artifactKey(runID, id)
	if err != nil {
		return false, storeErr("artifact_exists", err)
	}
	var discard map[string]any
	if err := s.getJSON(ctx, key, &discard); err != nil {
		if isNotFoundS3(err) {
			return false, nil
		}
		return false, storeErr("artifact_exists", err)
	}
	return true, nil
}

func (s *S3) DeleteArtifact(ctx context.Context, runID, id string) error {
	key, err := s.artifactKey(runID, id)
	if err != nil {
		return storeErr("delete_artifact", err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return storeErr("delete_artifact", err)
	}
	return nil
}

func (s *S3) ListArtifacts(ctx context.Context, runID string) ([]string, error) {
	prefix, err := s.artifactsPrefix(runID)
	if err != nil {
		return nil, storeErr("list_artifacts", err)
	}
	keys, err := s.listKeys(ctx, prefix)
	if err != nil {
		return nil, storeErr("list_artifacts", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		id := strings.TrimSuffix(strings.TrimPrefix(k, prefix), ".json")
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *S3) artifactsPrefix(runID string) (string, error) {
	if err := SanitizeKey(runID); err != nil {
		return "", err
	}
	return s.key("runs", runID, "artifacts") + "/", nil
}

func (s *S3) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	var token *string
	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range resp.Contents {
			out = append(out, *obj.Key)
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		token = resp.NextContinuationToken
	}
	return out, nil
}

func (s *S3) ClearArtifacts(ctx context.Context, runID string) error {
	prefix, err := s.artifactsPrefix(runID)
	if err != nil {
		return storeErr("clear_artifacts", err)
	}
	keys, err := s.listKeys(ctx, prefix)
	if err != nil {
		return storeErr("clear_artifacts", err)
	}
	for _, k := range keys {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &k}); err != nil {
			return storeErr("clear_artifacts", err)
		}
	}
	return nil
}

func (s *S3) SaveExecutionState(ctx context.Context, runID string, state enginetypes.ExecutionState) error {
	key, err := s.systemKey(runID, "state.json")
	if err != nil {
		return storeErr("save_execution_state", err)
	}
	if err := s.putJSON(ctx, key, state); err != nil {
		return storeErr("save_execution_state", err)
	}
	return nil
}

func (s *S3) LoadExecutionState(ctx context.Context, runID string) (enginetypes.ExecutionState, error) {
	key, err := s.systemKey(runID, "state.json")
	if err != nil {
		return enginetypes.ExecutionState{}, storeErr("load_execution_state", err)
	}
	var state enginetypes.ExecutionState
	if err := s.getJSON(ctx, key, &state); err != nil {
		if isNotFoundS3(err) {
			return enginetypes.ExecutionState{}, notFound(runID, "_system/state")
		}
		return enginetypes.ExecutionState{}, storeErr("load_execution_state", err)
	}
	return state, nil
}

func (s *S3) SaveRunMetadata(ctx context.Context, runID string, meta enginetypes.RunMetadata) error {
	key, err := s.systemKey(runID, "run.json")
	if err != nil {
		return storeErr("save_run_metadata", err)
	}
	if err := s.putJSON(ctx, key, meta); err != nil {
		return storeErr("save_run_metadata", err)
	}
	return nil
}

func (s *S3) LoadRunMetadata(ctx context.Context, runID string) (enginetypes.RunMetadata, error) {
	key, err := s.systemKey(runID, "run.json")
	if err != nil {
		return enginetypes.RunMetadata{}, storeErr("load_run_metadata", err)
	}
	var meta enginetypes.RunMetadata
	if err := s.getJSON(ctx, key, &meta); err != nil {
		if isNotFoundS3(err) {
			return enginetypes.RunMetadata{}, notFound(runID, "_system/run")
		}
		return enginetypes.RunMetadata{}, storeErr("load_run_metadata", err)
	}
	return meta, nil
}

func (s *S3) ListRuns(ctx context.Context) ([]string, error) {
	prefix := s.key("runs") + "/"
	keys, err := s.listKeys(ctx, prefix)
	if err != nil {
		return nil, storeErr("list_runs", err)
	}

	seen := make(map[string]struct{})
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		idx := strings.Index(rest, "/")
		if idx <= 0 {
			continue
		}
		seen[rest[:idx]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for runID := range seen {
		out = append(out, runID)
	}
	sort.Strings(out)
	return out, nil
}

func (s *S3) Close() error { return nil }
