package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// BlobStore keeps generated audio in an S3-compatible bucket so the reviewer
// can listen before approving and the uploader can fetch it back later.
type BlobStore struct {
	client   *minio.Client
	endpoint string
	bucket   string
	log      *zap.SugaredLogger
}

func NewBlobStore(env *Env, log *zap.SugaredLogger) (*BlobStore, error) {
	client, err := minio.New(env.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(env.S3AccessKey, env.S3SecretKey, ""),
		Secure: true,
		Region: env.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store client: %w", err)
	}

	return &BlobStore{
		client:   client,
		endpoint: env.S3Endpoint,
		bucket:   env.S3Bucket,
		log:      log,
	}, nil
}

// Put uploads the local file under audio/{basename} and returns its public
// HTTPS URL.
func (b *BlobStore) Put(ctx context.Context, localPath string) (string, error) {
	key := "audio/" + filepath.Base(localPath)

	info, err := b.client.FPutObject(ctx, b.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: audioMIME(localPath),
	})
	if err != nil {
		return "", fmt.Errorf("blob upload %s: %w", key, err)
	}

	publicURL := fmt.Sprintf("https://%s/%s/%s", b.endpoint, b.bucket, key)
	b.log.Infow("audio stored", "key", key, "bytes", info.Size, "url", publicURL)
	return publicURL, nil
}

// Fetch downloads the object behind audioURL into destDir and returns the
// local path. It first tries the S3 API with the key parsed out of the URL;
// if that fails (URL from another bucket layout, presigned link, migrated
// storage) it falls back to a plain HTTPS GET.
func (b *BlobStore) Fetch(ctx context.Context, audioURL, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	key, err := b.objectKey(audioURL)
	if err == nil {
		localPath := filepath.Join(destDir, path.Base(key))
		if err := b.client.FGetObject(ctx, b.bucket, key, localPath, minio.GetObjectOptions{}); err == nil {
			b.log.Debugw("audio fetched via object API", "key", key)
			return localPath, nil
		}
		b.log.Debugw("object API fetch failed, falling back to https", "key", key)
	}

	return b.fetchHTTPS(ctx, audioURL, destDir)
}

// objectKey extracts the bucket-relative key from a public URL in this
// store's canonical layout.
func (b *BlobStore) objectKey(audioURL string) (string, error) {
	u, err := url.Parse(audioURL)
	if err != nil {
		return "", err
	}
	prefix := "/" + b.bucket + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", fmt.Errorf("url %s is not under bucket %s", audioURL, b.bucket)
	}
	return strings.TrimPrefix(u.Path, prefix), nil
}

func (b *BlobStore) fetchHTTPS(ctx context.Context, audioURL, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", err
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("audio download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("audio download: status %d from %s", resp.StatusCode, audioURL)
	}

	name := path.Base(resp.Request.URL.Path)
	if name == "" || name == "/" || name == "." {
		name = "audio.mp3"
	}
	localPath := filepath.Join(destDir, name)

	out, err := os.Create(localPath)
	if err != nil {
		return "", err
	}
	_, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(localPath)
		return "", fmt.Errorf("audio download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(localPath)
		return "", closeErr
	}

	b.log.Debugw("audio fetched via https", "url", audioURL, "path", localPath)
	return localPath, nil
}
