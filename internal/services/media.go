package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const uploadURLExpiry = 5 * time.Minute

// mediaExtensions lists accepted upload content types
var mediaExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"audio/mp4":  ".m4a",
	"audio/aac":  ".aac",
	"audio/mpeg": ".mp3",
	"audio/webm": ".webm",
}

// Presigner signs S3 PUT requests
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var _ Presigner = (*s3.PresignClient)(nil)

// MediaService hands out pre-signed upload URLs for chat images and voice notes
type MediaService struct {
	couples   CoupleStore
	presigner Presigner
	bucket    string
	baseURL   string
}

// MediaUploadRequest asks for an upload URL
type MediaUploadRequest struct {
	ContentType string `json:"content_type"`
}

// MediaUploadResponse carries the signed URL and the URL to send in the message
type MediaUploadResponse struct {
	UploadURL string `json:"upload_url"`
	MediaURL  string `json:"media_url"`
	ExpiresIn int    `json:"expires_in"`
}

// NewMediaService creates a media service backed by S3. An empty bucket
// yields a service whose uploads fail with ErrMediaUnavailable.
func NewMediaService(ctx context.Context, couples CoupleStore, region, bucket, accessKey, secretKey, endpoint string) (*MediaService, error) {
	if bucket == "" {
		return &MediaService{couples: couples}, nil
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	if endpoint != "" {
		baseURL = strings.TrimRight(endpoint, "/") + "/" + bucket
	}

	return &MediaService{
		couples:   couples,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		baseURL:   baseURL,
	}, nil
}

// UploadURL signs a PUT for one object under the caller's couple prefix
func (s *MediaService) UploadURL(ctx context.Context, userID, contentType string) (*MediaUploadResponse, error) {
	if s.presigner == nil {
		return nil, ErrMediaUnavailable
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := mediaExtensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrInvalidInput, contentType)
	}

	couple, err := pairedCoupleOf(ctx, s.couples, userID)
	if err != nil {
		return nil, err
	}

	// {couple_id}/{uuid}{ext}
	key := fmt.Sprintf("%s/%s%s", couple.ID, uuid.New().String(), ext)

	request, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = uploadURLExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	return &MediaUploadResponse{
		UploadURL: request.URL,
		MediaURL:  s.baseURL + "/" + key,
		ExpiresIn: int(uploadURLExpiry.Seconds()),
	}, nil
}
