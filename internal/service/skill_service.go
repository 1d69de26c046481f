package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/formbricks/image-embedding-skill/internal/models"
	"github.com/formbricks/image-embedding-skill/internal/observability"
	"github.com/formbricks/image-embedding-skill/internal/skillerrors"
	"github.com/formbricks/image-embedding-skill/internal/vision"
)

// Per-record outcomes (skill_batch_records_total "outcome").
const (
	recordOutcomeSuccess  = "success"
	recordOutcomeFailed   = "failed"
	recordOutcomeDeadline = "deadline"
)

const (
	msgDeadline       = "batch deadline exceeded before the record was processed"
	msgDeadlineInCall = "batch deadline exceeded while calling the vision service"
	msgNoVector       = "vision service returned no vector"
	msgCancelled      = "request cancelled before the record was processed"
)

// Vectorizer computes embeddings in the vision model's shared image/text space.
type Vectorizer interface {
	VectorizeImage(ctx context.Context, imageURL string) ([]float64, error)
	VectorizeText(ctx context.Context, text string) ([]float64, error)
}

// SkillService turns a batch of skill records into a batch of vector results.
type SkillService struct {
	vectorizer   Vectorizer
	batchTimeout time.Duration
	metrics      observability.BatchMetrics
	logger       *slog.Logger
}

// SkillServiceParams configures SkillService. Metrics may be nil; BatchTimeout <= 0 disables the batch deadline.
type SkillServiceParams struct {
	Vectorizer   Vectorizer
	BatchTimeout time.Duration
	Metrics      observability.BatchMetrics
	Logger       *slog.Logger
}

// NewSkillService creates a SkillService.
func NewSkillService(p SkillServiceParams) *SkillService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SkillService{
		vectorizer:   p.Vectorizer,
		batchTimeout: p.BatchTimeout,
		metrics:      p.Metrics,
		logger:       logger,
	}
}

// Enrich vectorizes each record in order and returns exactly one result per record, in the
// same order. A failing record carries its error and a null vector; the rest still run.
// Records are processed sequentially under the batch deadline; records reached after it
// expires are not sent upstream.
func (s *SkillService) Enrich(
	ctx context.Context, records []models.SkillRecord, kind models.InputKind,
) []models.SkillResponseRecord {
	start := time.Now()

	if s.batchTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.batchTimeout)
		defer cancel()
	}

	results := make([]models.SkillResponseRecord, 0, len(records))
	failed := 0

	for i := range records {
		result := s.enrichRecord(ctx, &records[i], kind)
		if result.Errors != nil {
			failed++
		}

		results = append(results, result)
	}

	if s.metrics != nil {
		s.metrics.RecordBatch(ctx, string(kind), time.Since(start))
	}

	s.logger.InfoContext(ctx, "batch enriched",
		"kind", kind,
		"records", len(records),
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return results
}

func (s *SkillService) enrichRecord(
	ctx context.Context, record *models.SkillRecord, kind models.InputKind,
) models.SkillResponseRecord {
	result := models.SkillResponseRecord{RecordID: record.RecordID}
	input := record.Data.Input(kind)
	recordID := string(record.RecordID)

	if err := ctx.Err(); err != nil {
		msg := msgCancelled
		if errors.Is(err, context.DeadlineExceeded) {
			msg = msgDeadline
		}

		s.logger.WarnContext(ctx, "record skipped", "record_id", recordID, "reason", msg)
		s.record(ctx, kind, recordOutcomeDeadline)

		return withError(result, msg)
	}

	s.logger.InfoContext(ctx, "processing record", "record_id", recordID, inputLogAttr(kind, input))

	vector, err := s.vectorize(ctx, input, kind)
	if err != nil {
		s.logger.ErrorContext(ctx, "record failed", "record_id", recordID, "error", err)
		s.record(ctx, kind, recordOutcomeFailed)

		return withError(result, errorMessage(ctx, err))
	}

	s.record(ctx, kind, recordOutcomeSuccess)
	result.Data.Vector = vector

	return result
}

func (s *SkillService) vectorize(ctx context.Context, input string, kind models.InputKind) ([]float64, error) {
	if kind == models.InputKindText {
		if strings.TrimSpace(input) == "" {
			return nil, skillerrors.NewInvalidInputError("text", "text must not be blank")
		}

		//nolint:wrapcheck // vision errors are typed and mapped by errorMessage
		return s.vectorizer.VectorizeText(ctx, input)
	}

	if err := ValidateImageURL(input); err != nil {
		return nil, err
	}

	//nolint:wrapcheck // vision errors are typed and mapped by errorMessage
	return s.vectorizer.VectorizeImage(ctx, input)
}

func (s *SkillService) record(ctx context.Context, kind models.InputKind, outcome string) {
	if s.metrics == nil {
		return
	}

	s.metrics.RecordRecord(ctx, string(kind), outcome)
}

// ValidateImageURL checks that raw is an absolute http or https URL with a host.
func ValidateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return skillerrors.NewInvalidInputError("imageUrl", "imageUrl is not a valid URL: "+err.Error())
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return skillerrors.NewInvalidInputError("imageUrl", "imageUrl must be an absolute http or https URL")
	}

	if u.Host == "" {
		return skillerrors.NewInvalidInputError("imageUrl", "imageUrl must include a host")
	}

	return nil
}

// errorMessage maps a record failure to the message returned to the caller. A transport
// failure caused by the batch deadline expiring is reported as the deadline.
func errorMessage(ctx context.Context, err error) string {
	var (
		upstream *skillerrors.UpstreamError
		network  *skillerrors.NetworkError
		invalid  *skillerrors.InvalidInputError
	)

	switch {
	case errors.As(err, &invalid):
		return invalid.Error()
	case errors.As(err, &upstream):
		return upstream.Error()
	case errors.Is(err, vision.ErrNoVectorInResponse):
		return msgNoVector
	case errors.As(err, &network):
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return msgDeadlineInCall
		}

		return network.Error()
	default:
		return err.Error()
	}
}

func withError(result models.SkillResponseRecord, msg string) models.SkillResponseRecord {
	result.Data.Vector = nil
	result.Errors = []models.SkillMessage{{Message: msg}}

	return result
}

// inputLogAttr logs image URLs as-is; query text is logged by length only.
func inputLogAttr(kind models.InputKind, input string) slog.Attr {
	if kind == models.InputKindText {
		return slog.Int("text_length", len(input))
	}

	return slog.String("image_url", input)
}
