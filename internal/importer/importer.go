package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shaiso/ModuleTrack/internal/domain"
	"github.com/shaiso/ModuleTrack/internal/engine"
	"github.com/shaiso/ModuleTrack/internal/repo"
	"gopkg.in/yaml.v3"
)

// Ошибки импорта.
var (
	// ErrEmpty — во входных данных нет ни одной процедуры.
	ErrEmpty = errors.New("no test configs in input")

	// ErrMalformed — документ не разбирается как YAML процедуры.
	ErrMalformed = errors.New("malformed test config document")
)

// Store — хранилище процедур.
type Store interface {
	GetByName(ctx context.Context, name string) (*domain.TestConfig, error)
	Create(ctx context.Context, cfg *domain.TestConfig) error
	Update(ctx context.Context, cfg *domain.TestConfig) error
}

// Options — параметры импорта.
type Options struct {
	// Replace — заменять шаги существующей процедуры с тем же названием.
	// Без флага совпадение названия — repo.ErrAlreadyExists.
	Replace bool
}

// Result — итог импорта (названия процедур).
type Result struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
}

type configDoc struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Steps       []stepDoc `yaml:"steps"`
}

type stepDoc struct {
	Kind string `yaml:"kind"`

	ParameterName string   `yaml:"parameter_name"`
	Min           *float64 `yaml:"min"`
	Max           *float64 `yaml:"max"`
	Unit          string   `yaml:"unit"`

	Text           string `yaml:"text"`
	RequiredAnswer *bool  `yaml:"required_answer"`
}

// Decode читает все документы и возвращает нормализованные
// и проверенные процедуры. Шаги нумеруются в порядке следования.
func Decode(r io.Reader) ([]*domain.TestConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var configs []*domain.TestConfig
	names := make(map[string]bool)
	for i := 1; ; i++ {
		var doc configDoc
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w: %v", i, ErrMalformed, err)
		}

		cfg, err := doc.toDomain()
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}

		engine.Normalize(cfg)
		if err := engine.Validate(cfg); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}

		key := strings.ToLower(cfg.Name)
		if names[key] {
			return nil, fmt.Errorf("document %d: %w: duplicate name %q", i, repo.ErrAlreadyExists, cfg.Name)
		}
		names[key] = true

		configs = append(configs, cfg)
	}

	if len(configs) == 0 {
		return nil, ErrEmpty
	}
	return configs, nil
}

// Import декодирует процедуры и сохраняет их.
func Import(ctx context.Context, store Store, r io.Reader, opts Options) (*Result, error) {
	configs, err := Decode(r)
	if err != nil {
		return nil, err
	}

	// Конфликты названий проверяются до первой записи
	existing := make([]*domain.TestConfig, len(configs))
	for i, cfg := range configs {
		current, err := store.GetByName(ctx, cfg.Name)
		switch {
		case errors.Is(err, repo.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("lookup %q: %w", cfg.Name, err)
		case !opts.Replace:
			return nil, fmt.Errorf("%w: test config %q", repo.ErrAlreadyExists, cfg.Name)
		default:
			existing[i] = current
		}
	}

	res := &Result{}
	for i, cfg := range configs {
		if current := existing[i]; current != nil {
			cfg.ID = current.ID
			cfg.CreatedAt = current.CreatedAt
			if err := store.Update(ctx, cfg); err != nil {
				return res, fmt.Errorf("update %q: %w", cfg.Name, err)
			}
			res.Updated = append(res.Updated, cfg.Name)
			continue
		}

		if err := store.Create(ctx, cfg); err != nil {
			return res, fmt.Errorf("create %q: %w", cfg.Name, err)
		}
		res.Created = append(res.Created, cfg.Name)
	}
	return res, nil
}

func (d *configDoc) toDomain() (*domain.TestConfig, error) {
	cfg := &domain.TestConfig{
		Name:        d.Name,
		Description: d.Description,
		Steps:       make([]domain.Step, 0, len(d.Steps)),
	}
	for i, s := range d.Steps {
		step, err := s.toDomain(i + 1)
		if err != nil {
			return nil, err
		}
		cfg.Steps = append(cfg.Steps, step)
	}
	return cfg, nil
}

func (s *stepDoc) toDomain(order int) (domain.Step, error) {
	kind := domain.StepKind(strings.ToUpper(strings.TrimSpace(s.Kind)))

	switch {
	case kind.IsMeasurement():
		if s.Min == nil || s.Max == nil {
			return domain.Step{}, engine.NewValidationError(fmt.Sprintf("#%d", order), "measurement",
				"min and max are required", engine.ErrInvalidBounds)
		}
		return domain.NewMeasurementStep(kind, order, s.ParameterName, *s.Min, *s.Max, s.Unit), nil

	case kind == domain.StepKindQuestion:
		required := true
		if s.RequiredAnswer != nil {
			required = *s.RequiredAnswer
		}
		return domain.NewQuestionStep(order, s.Text, required), nil

	case kind == domain.StepKindInstruction:
		return domain.NewInstructionStep(order, s.Text), nil

	default:
		return domain.Step{}, engine.NewValidationError(fmt.Sprintf("#%d", order), "kind",
			fmt.Sprintf("unknown step kind: %q", s.Kind), engine.ErrUnknownStepKind)
	}
}
