// Package analysis runs one X-ray through diagnosis and, for a known person,
// enrichment with their vulnerability profile and persistence.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skufu/pneumoscan/internal/diagnosis"
	"github.com/Skufu/pneumoscan/internal/explain"
	"github.com/Skufu/pneumoscan/internal/model"
	"github.com/Skufu/pneumoscan/internal/vulnerability"
)

// ErrStorage wraps blob and database failures on the authenticated path.
var ErrStorage = errors.New("storage failure")

const rollbackTimeout = 10 * time.Second

type Diagnoser interface {
	Diagnose(ctx context.Context, image []byte, contentType string) (diagnosis.Result, error)
}

type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
}

type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, rec *model.AnalysisRecord) error
}

type Assessor interface {
	Assess(ctx context.Context, personID uuid.UUID) vulnerability.Info
}

// Recorder receives analysis metrics.
type Recorder interface {
	RecordAnalysis(diagnosis string, authenticated bool)
	RecordStorageError(operation string)
	RecordTier(tier string)
}

type Upload struct {
	Data        []byte
	ContentType string
}

// Outcome is what a finished analysis returns. Vulnerability and Record are nil
// for anonymous callers.
type Outcome struct {
	Result        diagnosis.Result
	Authenticated bool
	Explanation   explain.Explanation
	Vulnerability *vulnerability.Info
	Record        *model.AnalysisRecord
	State         State
}

type Orchestrator struct {
	diagnoser Diagnoser
	blobs     BlobStore
	analyses  AnalysisStore
	assessor  Assessor
	recorder  Recorder
	logger    *zap.Logger

	now   func() time.Time
	newID func() uuid.UUID
}

// Options holds the orchestrator's collaborators. Blobs, Analyses and Assessor
// are only needed for authenticated analyses.
type Options struct {
	Diagnoser Diagnoser
	Blobs     BlobStore
	Analyses  AnalysisStore
	Assessor  Assessor
	Recorder  Recorder
	Logger    *zap.Logger
}

func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		diagnoser: opts.Diagnoser,
		blobs:     opts.Blobs,
		analyses:  opts.Analyses,
		assessor:  opts.Assessor,
		recorder:  opts.Recorder,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.New,
	}
}

// Analyze diagnoses the image first. With a nil person the bare diagnosis is
// returned and nothing is stored. Otherwise the image is uploaded, the person's
// vulnerability is assessed and the record saved; a failed save deletes the
// uploaded image again.
func (o *Orchestrator) Analyze(ctx context.Context, up Upload, person *model.Person) (*Outcome, error) {
	lc := newLifecycle()

	result, err := o.diagnoser.Diagnose(ctx, up.Data, up.ContentType)
	if err != nil {
		return nil, err
	}
	if err := lc.advance(StateDiagnosed); err != nil {
		return nil, err
	}

	if person == nil {
		if err := lc.advance(StateReturnedAnonymous); err != nil {
			return nil, err
		}
		o.record(result.Label, false)
		return &Outcome{
			Result: result,
			Explanation: explain.Explanation{
				Detailed: explain.AnonymousExplanation,
				Urgency:  explain.UrgencyRoutine,
			},
			State: lc.state,
		}, nil
	}

	return o.enrich(ctx, lc, up, person, result)
}

func (o *Orchestrator) enrich(ctx context.Context, lc *lifecycle, up Upload, person *model.Person, result diagnosis.Result) (*Outcome, error) {
	if o.blobs == nil || o.analyses == nil || o.assessor == nil {
		return nil, fmt.Errorf("%w: storage is not configured", ErrStorage)
	}

	logger := o.logger.With(zap.String("person_id", person.ID.String()))
	id := o.newID()
	path := ObjectPath(person.ID, id, up.ContentType)

	url, err := o.blobs.Upload(ctx, path, up.Data, up.ContentType)
	if err != nil {
		o.storageError("upload")
		logger.Error("image upload failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: upload image: %w", ErrStorage, err)
	}

	info := o.assessor.Assess(ctx, person.ID)
	expl := explain.Compose(result.Label, result.Confidence, info)
	if err := lc.advance(StateEnriched); err != nil {
		return nil, err
	}

	rec := &model.AnalysisRecord{
		ID:                       id,
		PersonID:                 person.ID,
		ImageURL:                 url,
		ImagePath:                path,
		Diagnosis:                result.Label,
		Confidence:               result.Confidence,
		Probabilities:            result.Probabilities,
		CreatedAt:                o.now().UTC(),
		VulnerabilityTier:        info.Tier,
		Priority:                 info.Priority,
		VulnerabilityExplanation: info.Explanation,
		DetailedExplanation:      expl.Detailed,
	}

	if err := o.analyses.SaveAnalysis(ctx, rec); err != nil {
		o.storageError("save")
		logger.Error("saving analysis failed", zap.String("analysis_id", id.String()), zap.Error(err))
		o.rollback(ctx, logger, path)
		return nil, fmt.Errorf("%w: save analysis: %w", ErrStorage, err)
	}
	if err := lc.advance(StatePersisted); err != nil {
		return nil, err
	}
	if err := lc.advance(StateReturnedAuthenticated); err != nil {
		return nil, err
	}

	o.record(result.Label, true)
	if o.recorder != nil {
		o.recorder.RecordTier(string(info.Tier))
	}
	logger.Info("analysis saved",
		zap.String("analysis_id", id.String()),
		zap.String("diagnosis", string(result.Label)),
		zap.Float64("confidence", result.Confidence),
		zap.String("tier", string(info.Tier)))

	return &Outcome{
		Result:        result,
		Authenticated: true,
		Explanation:   expl,
		Vulnerability: &info,
		Record:        rec,
		State:         lc.state,
	}, nil
}

// rollback deletes an orphaned upload. It runs even if the request context is
// already cancelled.
func (o *Orchestrator) rollback(ctx context.Context, logger *zap.Logger, path string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := o.blobs.Delete(ctx, path); err != nil {
		o.storageError("rollback")
		logger.Warn("could not delete orphaned image", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Info("orphaned image deleted", zap.String("path", path))
}

func (o *Orchestrator) record(label model.Diagnosis, authenticated bool) {
	if o.recorder != nil {
		o.recorder.RecordAnalysis(string(label), authenticated)
	}
}

func (o *Orchestrator) storageError(op string) {
	if o.recorder != nil {
		o.recorder.RecordStorageError(op)
	}
}

// ObjectPath is where an analysis image is stored: <person_id>/<analysis_id>.<ext>.
func ObjectPath(personID, analysisID uuid.UUID, contentType string) string {
	return personID.String() + "/" + analysisID.String() + "." + extension(contentType)
}

func extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	switch strings.ToLower(mediaType) {
	case "image/png":
		return "png"
	default:
		return "jpg"
	}
}
