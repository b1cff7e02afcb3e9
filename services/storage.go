package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// StorageService holds rendered QR images in object storage. The registry
// only keeps the object key; delivery goes through presigned URLs.
type StorageService struct {
	appContext.DefaultService
	client     *minio.Client
	bucketName string
	endpoint   string
	accessKey  string
	secretKey  string
	useSSL     bool
	disabled   bool
}

const STORAGE_SVC = "storage_svc"

func (svc StorageService) Id() string {
	return STORAGE_SVC
}

func (svc *StorageService) Configure(ctx *appContext.Context) error {
	svc.endpoint = os.Getenv("MINIO_ENDPOINT")
	if svc.endpoint == "" {
		// No object store configured; QR images are skipped rather than
		// failing creates.
		svc.disabled = true
		return svc.DefaultService.Configure(ctx)
	}

	svc.accessKey = os.Getenv("MINIO_ACCESS_KEY")
	svc.secretKey = os.Getenv("MINIO_SECRET_KEY")
	svc.useSSL = os.Getenv("MINIO_USE_SSL") == "true"

	svc.bucketName = os.Getenv("MINIO_BUCKET_NAME")
	if svc.bucketName == "" {
		svc.bucketName = "snaplink-qr"
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *StorageService) Start() error {
	if svc.disabled {
		log.Println("Object storage not configured, QR images disabled")
		return nil
	}

	client, err := minio.New(svc.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(svc.accessKey, svc.secretKey, ""),
		Secure: svc.useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage client: %v", err)
	}

	svc.client = client

	if err := svc.ensureBucket(); err != nil {
		return fmt.Errorf("failed to ensure bucket exists: %v", err)
	}

	log.Printf("Storage service started with endpoint: %s", svc.endpoint)
	return nil
}

func (svc *StorageService) Enabled() bool {
	return !svc.disabled
}

func (svc *StorageService) ensureBucket() error {
	ctx := context.Background()

	exists, err := svc.client.BucketExists(ctx, svc.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}

	if !exists {
		if err := svc.client.MakeBucket(ctx, svc.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
		log.Printf("Created storage bucket: %s", svc.bucketName)
	}

	return nil
}

// PutImage stores PNG bytes under the given key.
func (svc *StorageService) PutImage(ctx context.Context, key string, data []byte) error {
	if svc.disabled {
		return nil
	}

	_, err := svc.client.PutObject(ctx, svc.bucketName, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "image/png"})
	if err != nil {
		return fmt.Errorf("failed to store image: %v", err)
	}
	return nil
}

// ImageURL returns a presigned download URL for a stored image.
func (svc *StorageService) ImageURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if svc.disabled || key == "" {
		return "", nil
	}

	presignedURL, err := svc.client.PresignedGetObject(ctx, svc.bucketName, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %v", err)
	}
	return presignedURL.String(), nil
}

func (svc *StorageService) DeleteImage(ctx context.Context, key string) error {
	if svc.disabled || key == "" {
		return nil
	}

	if err := svc.client.RemoveObject(ctx, svc.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete image: %v", err)
	}
	return nil
}
