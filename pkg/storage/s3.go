// Package storage mirrors classifier artifacts to S3 so a fresh
// deployment can recover the latest model generation instead of
// re-bootstrapping from synthetic data.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// FolderModels is the S3 prefix for model artifact objects.
const FolderModels = "models"

// ErrNoMirror reports an empty mirror bucket: nothing to restore.
var ErrNoMirror = errors.New("storage: no mirrored model generations")

// S3Config holds S3 client configuration.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ModelsBucket    string
}

// S3 uploads and fetches model artifact files.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or the
// environment (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		if logger != nil {
			logger.Info("S3 client using credentials from .env/config",
				zap.String("region", cfg.Region),
				zap.String("models_bucket", cfg.ModelsBucket))
		}
	} else if logger != nil {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// ModelKey returns the S3 object key for an artifact file:
// models/{version}/{filename}.
func ModelKey(version int, filename string) string {
	return path.Join(FolderModels, fmt.Sprintf("v%d", version), path.Base(filename))
}

// UploadArtifacts mirrors the given local artifact files under the
// generation's prefix. Files are uploaded in order; the manifest should
// come last so a partially mirrored generation is never picked up.
func (s *S3) UploadArtifacts(ctx context.Context, version int, paths []string) error {
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open artifact %s: %w", p, err)
		}
		key := ModelKey(version, filepath.Base(p))
		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.cfg.ModelsBucket),
			Key:         aws.String(key),
			Body:        f,
			ContentType: aws.String("application/json"),
		})
		f.Close()
		if err != nil {
			return fmt.Errorf("upload artifact %s: %w", key, err)
		}
		if s.logger != nil {
			s.logger.Info("artifact mirrored",
				zap.String("bucket", s.cfg.ModelsBucket),
				zap.String("key", key))
		}
	}
	return nil
}

// RestoreLatest downloads the newest mirrored generation into the given
// local artifact paths. Returns ErrNoMirror when the bucket holds no
// generations, so the caller can fall through to bootstrap.
func (s *S3) RestoreLatest(ctx context.Context, paths []string) error {
	version, err := s.latestVersion(ctx)
	if err != nil {
		return err
	}
	if len(paths) > 0 {
		if err := os.MkdirAll(filepath.Dir(paths[0]), 0o755); err != nil {
			return err
		}
	}
	for _, p := range paths {
		if err := s.FetchArtifact(ctx, version, filepath.Base(p), p); err != nil {
			return err
		}
	}
	if s.logger != nil {
		s.logger.Info("model artifacts restored from mirror",
			zap.String("bucket", s.cfg.ModelsBucket),
			zap.Int("version", version))
	}
	return nil
}

// latestVersion finds the highest models/v{N}/ prefix in the bucket.
func (s *S3) latestVersion(ctx context.Context) (int, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.cfg.ModelsBucket),
		Prefix:    aws.String(FolderModels + "/"),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return 0, fmt.Errorf("list model generations: %w", err)
	}
	latest := 0
	for _, cp := range out.CommonPrefixes {
		if cp.Prefix == nil {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, FolderModels+"/"), "/")
		if !strings.HasPrefix(name, "v") {
			continue
		}
		if n, err := strconv.Atoi(name[1:]); err == nil && n > latest {
			latest = n
		}
	}
	if latest == 0 {
		return 0, ErrNoMirror
	}
	return latest, nil
}

// FetchArtifact downloads one artifact object into a local file.
func (s *S3) FetchArtifact(ctx context.Context, version int, filename, destPath string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.ModelsBucket),
		Key:    aws.String(ModelKey(version, filename)),
	})
	if err != nil {
		return fmt.Errorf("get artifact %s: %w", filename, err)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".artifact-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.ReadFrom(out.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), destPath)
}
