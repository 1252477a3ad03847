package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/retroflect/backend/config"
	"github.com/retroflect/backend/internal/database/repository"
	"github.com/retroflect/backend/internal/models"
)

// BoardArchive is the snapshot document written when a board closes: the
// board itself plus every card and participant session at closing time.
type BoardArchive struct {
	Board        *models.Board         `json:"board"`
	Cards        []*models.Card        `json:"cards"`
	Participants []*models.Participant `json:"participants"`
	ArchivedAt   time.Time             `json:"archived_at"`
}

// Archiver snapshots closed boards to long-term storage
type Archiver interface {
	ArchiveBoard(ctx context.Context, board *models.Board) error
}

// S3Archiver implements Archiver against any S3-compatible bucket
type S3Archiver struct {
	client          *s3.Client
	bucketName      string
	cardRepo        repository.CardRepository
	participantRepo repository.ParticipantRepository
}

// NewS3Archiver creates an archiver writing to the configured bucket. An
// endpoint override points the client at an S3-compatible store such as R2
// or MinIO; without one the default AWS resolution applies.
func NewS3Archiver(
	cfg *appconfig.Config,
	cardRepo repository.CardRepository,
	participantRepo repository.ParticipantRepository,
) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ArchiveRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.ArchiveKey,
			cfg.ArchiveSecret,
			"",
		)),
	}

	if cfg.ArchiveEndpoint != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL: cfg.ArchiveEndpoint,
			}, nil
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(customResolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Archiver{
		client:          s3.NewFromConfig(awsCfg),
		bucketName:      cfg.ArchiveBucket,
		cardRepo:        cardRepo,
		participantRepo: participantRepo,
	}, nil
}

// ArchiveBoard writes one JSON object per closure under the board's id. The
// object key carries the closing timestamp, so re-closing an already closed
// board can never clobber an earlier snapshot.
func (s *S3Archiver) ArchiveBoard(ctx context.Context, board *models.Board) error {
	cards, err := s.cardRepo.GetByBoardID(ctx, board.ID)
	if err != nil {
		return fmt.Errorf("loading cards for archive: %w", err)
	}

	participants, err := s.participantRepo.GetByBoardID(ctx, board.ID)
	if err != nil {
		return fmt.Errorf("loading participants for archive: %w", err)
	}

	now := time.Now().UTC()
	snapshot := BoardArchive{
		Board:        board,
		Cards:        cards,
		Participants: participants,
		ArchivedAt:   now,
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding archive: %w", err)
	}

	objectKey := fmt.Sprintf("boards/%s/%s.json", board.ID, now.Format("20060102T150405Z"))

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	return nil
}
