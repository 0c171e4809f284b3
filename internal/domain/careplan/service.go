package careplan

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careplan/careplan/internal/platform/llm"
	"github.com/careplan/careplan/pkg/apperrors"
)

const (
	msgPatientInfoRequired  = "Patient information is required."
	msgPatientInfoImmutable = "Patient information cannot be changed after creation."
	msgNotFound             = "Care plan not found."
)

func errNotFound() error {
	return apperrors.NewNotFoundError(msgNotFound)
}

// GenerationSettings are fixed for the lifetime of the process.
type GenerationSettings struct {
	Model     string
	MaxTokens int
}

type Service struct {
	carePlans CarePlanRepository
	generator llm.Generator
	settings  GenerationSettings
	logger    zerolog.Logger
}

func NewService(cp CarePlanRepository, gen llm.Generator, settings GenerationSettings) *Service {
	return &Service{carePlans: cp, generator: gen, settings: settings, logger: zerolog.Nop()}
}

// SetLogger attaches a logger used for status transitions and upstream failures.
func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "careplan").Logger()
}

func validatePatientInfo(patientInfo string) error {
	if strings.TrimSpace(patientInfo) == "" {
		return apperrors.NewValidationError(msgPatientInfoRequired)
	}
	return nil
}

func (s *Service) CreateCarePlan(ctx context.Context, patientInfo string) (*CarePlan, error) {
	if err := validatePatientInfo(patientInfo); err != nil {
		return nil, err
	}
	cp := &CarePlan{PatientInfo: patientInfo}
	if err := s.carePlans.Create(ctx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *Service) GetCarePlan(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	return s.carePlans.GetByID(ctx, id)
}

func (s *Service) ListCarePlans(ctx context.Context, limit, offset int) ([]*CarePlan, int, error) {
	return s.carePlans.List(ctx, limit, offset)
}

// UpdateCarePlan applies a client update. Generated fields are never client
// writable and patient_info is fixed at creation, so the only accepted change
// is a no-op; a differing patient_info is rejected.
func (s *Service) UpdateCarePlan(ctx context.Context, id uuid.UUID, patientInfo *string) (*CarePlan, error) {
	cp, err := s.carePlans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patientInfo != nil && *patientInfo != cp.PatientInfo {
		return nil, apperrors.NewValidationError(msgPatientInfoImmutable)
	}
	return cp, nil
}

func (s *Service) DeleteCarePlan(ctx context.Context, id uuid.UUID) error {
	return s.carePlans.Delete(ctx, id)
}

// Generate creates a care plan record and fills it synchronously from the
// generation service. On upstream failure the record is stored as FAILED and
// returned together with a generation error carrying the upstream message.
func (s *Service) Generate(ctx context.Context, patientInfo string) (*CarePlan, error) {
	cp, err := s.CreateCarePlan(ctx, patientInfo)
	if err != nil {
		return nil, err
	}
	log := s.logger.With().Str("careplan_id", cp.ID.String()).Logger()

	if err := cp.transition(StatusProcessing); err != nil {
		return cp, apperrors.NewInternalError("start generation", err)
	}
	if err := s.carePlans.Update(ctx, cp); err != nil {
		return cp, err
	}
	log.Debug().Str("status", string(cp.Status)).Msg("care plan generation started")

	completion, genErr := s.generator.Generate(ctx, llm.Request{
		Model:     s.settings.Model,
		MaxTokens: s.settings.MaxTokens,
		Prompt:    llm.CarePlanPrompt(cp.PatientInfo),
	})

	// The final state is written even if the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)

	if genErr != nil {
		log.Error().Err(genErr).Msg("care plan generation failed")
		if err := cp.Fail(genErr); err != nil {
			return cp, apperrors.NewInternalError("record failure", err)
		}
		if err := s.carePlans.Update(persistCtx, cp); err != nil {
			log.Error().Err(err).Msg("persist failed care plan")
		}
		return cp, apperrors.NewGenerationError(genErr)
	}

	text := completion.Text
	if !completion.HasContent {
		text = NoCarePlanGenerated
	}
	if err := cp.Complete(text); err != nil {
		return cp, apperrors.NewInternalError("record completion", err)
	}
	if err := s.carePlans.Update(persistCtx, cp); err != nil {
		return cp, err
	}
	log.Info().Str("status", string(cp.Status)).Msg("care plan generated")
	return cp, nil
}
