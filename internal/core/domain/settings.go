package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultBatch          = "Mock Exams Feb 2025"
	DefaultConfigFileName = "gaconfig.json"
	WeightTotal           = 100
)

// Settings is the persisted grading configuration.
type Settings struct {
	SyntheseAssistantID   string `json:"synthese_assistant_id" validate:"required"`
	EssaiAssistantID      string `json:"essai_assistant_id" validate:"required"`
	TraductionAssistantID string `json:"traduction_assistant_id" validate:"required"`
	SyntheseWeight        int    `json:"synthese_weight" validate:"min=0,max=100"`
	EssaiWeight           int    `json:"essai_weight" validate:"min=0,max=100"`
	TraductionWeight      int    `json:"traduction_weight" validate:"min=0,max=100"`
	CurrentBatch          string `json:"current_batch" validate:"required"`
	ConfigFileName        string `json:"config_file_name"`
}

// Rubrics holds the assistant id per section kind.
type Rubrics struct {
	Synthese   string
	Essai      string
	Traduction string
}

func DefaultSettings(rubrics Rubrics) Settings {
	return Settings{
		SyntheseAssistantID:   rubrics.Synthese,
		EssaiAssistantID:      rubrics.Essai,
		TraductionAssistantID: rubrics.Traduction,
		SyntheseWeight:        30,
		EssaiWeight:           50,
		TraductionWeight:      20,
		CurrentBatch:          DefaultBatch,
		ConfigFileName:        DefaultConfigFileName,
	}
}

// Validate checks field bounds and that the weights sum to exactly 100.
func (s Settings) Validate() error {
	err := ValidateStruct("settings", s)
	var verr *ValidationError
	if err != nil && !errors.As(err, &verr) {
		return err
	}
	if sum := s.SyntheseWeight + s.EssaiWeight + s.TraductionWeight; sum != WeightTotal {
		if verr == nil {
			verr = NewValidationError("settings")
		}
		verr.Fields = append(verr.Fields, FieldError{
			Field:   "weights",
			Message: fmt.Sprintf("must sum to %d, got %d", WeightTotal, sum),
		})
	}
	if verr != nil {
		return verr
	}
	return nil
}

func (s Settings) RubricFor(kind SectionKind) (string, error) {
	switch kind {
	case SectionSynthese:
		return s.SyntheseAssistantID, nil
	case SectionEssai:
		return s.EssaiAssistantID, nil
	case SectionTraduction:
		return s.TraductionAssistantID, nil
	default:
		return "", WrapError(ErrInvalidInput, "rubric for", fmt.Errorf("unknown section %d", int(kind)))
	}
}

func (s Settings) WeightFor(kind SectionKind) (int, error) {
	switch kind {
	case SectionSynthese:
		return s.SyntheseWeight, nil
	case SectionEssai:
		return s.EssaiWeight, nil
	case SectionTraduction:
		return s.TraductionWeight, nil
	default:
		return 0, WrapError(ErrInvalidInput, "weight for", fmt.Errorf("unknown section %d", int(kind)))
	}
}

func (s Settings) Weights() map[SectionKind]int {
	return map[SectionKind]int{
		SectionSynthese:   s.SyntheseWeight,
		SectionEssai:      s.EssaiWeight,
		SectionTraduction: s.TraductionWeight,
	}
}

// FileName returns the config blob name, falling back to the default.
func (s Settings) FileName() string {
	if strings.TrimSpace(s.ConfigFileName) == "" {
		return DefaultConfigFileName
	}
	return s.ConfigFileName
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidateStruct runs tag validation and converts failures into a ValidationError.
func ValidateStruct(op string, v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%s: %w", op, err)
	}
	verr := NewValidationError(op)
	for _, fe := range fieldErrs {
		verr.Fields = append(verr.Fields, FieldError{Field: fe.Field(), Message: describeTag(fe)})
	}
	return verr
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
