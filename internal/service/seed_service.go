package service

import (
	"bytes"
	"context"
	"crypto/subtle"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/certeval-api/internal/dto"
	"github.com/noah-isme/certeval-api/internal/models"
	"github.com/noah-isme/certeval-api/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding endpoint is disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
)

//go:embed schemas/catalog.schema.json
var catalogSchemaJSON []byte

const catalogSchemaURL = "catalog.schema.json"

// SeedService loads the reference catalog the evaluation engine grades against.
type SeedService interface {
	// SeedCatalog is the token-guarded entry point used over HTTP.
	SeedCatalog(ctx context.Context, token string, document []byte) (dto.CatalogSeedSummary, error)
	// LoadCatalog validates and writes a catalog document without a token check.
	LoadCatalog(ctx context.Context, document []byte) (dto.CatalogSeedSummary, error)
}

type seedService struct {
	catalog   repository.CatalogRepository
	schema    *jsonschema.Schema
	sanitizer *bluemonday.Policy
	enabled   bool
	token     string
	logger    zerolog.Logger
}

// NewSeedService constructs the catalog seeding service. The embedded schema is compiled once.
func NewSeedService(catalog repository.CatalogRepository, enabled bool, token string, logger zerolog.Logger) (SeedService, error) {
	schema, err := compileCatalogSchema()
	if err != nil {
		return nil, err
	}

	return &seedService{
		catalog:   catalog,
		schema:    schema,
		sanitizer: bluemonday.StrictPolicy(),
		enabled:   enabled,
		token:     token,
		logger:    logger.With().Str("component", "seed_service").Logger(),
	}, nil
}

func compileCatalogSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(catalogSchemaURL, bytes.NewReader(catalogSchemaJSON)); err != nil {
		return nil, fmt.Errorf("load catalog schema: %w", err)
	}
	schema, err := compiler.Compile(catalogSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}
	return schema, nil
}

func (s *seedService) SeedCatalog(ctx context.Context, token string, document []byte) (dto.CatalogSeedSummary, error) {
	if !s.enabled {
		return dto.CatalogSeedSummary{}, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return dto.CatalogSeedSummary{}, ErrSeedUnauthorized
	}
	return s.LoadCatalog(ctx, document)
}

func (s *seedService) LoadCatalog(ctx context.Context, document []byte) (dto.CatalogSeedSummary, error) {
	var raw interface{}
	if err := json.Unmarshal(document, &raw); err != nil {
		return dto.CatalogSeedSummary{}, fmt.Errorf("%w: catalog is not valid JSON: %w", ErrValidation, err)
	}
	if err := s.schema.Validate(raw); err != nil {
		return dto.CatalogSeedSummary{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	var doc dto.CatalogDocument
	if err := json.Unmarshal(document, &doc); err != nil {
		return dto.CatalogSeedSummary{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	catalog, warnings, err := s.buildCatalog(doc)
	if err != nil {
		return dto.CatalogSeedSummary{}, err
	}

	if err := s.catalog.Upsert(ctx, catalog); err != nil {
		s.logger.Error().Err(err).Msg("catalog upsert failed")
		return dto.CatalogSeedSummary{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	for _, warning := range warnings {
		s.logger.Warn().Msg(warning)
	}

	summary := dto.CatalogSeedSummary{
		Departments: len(catalog.Departments),
		Knowledge:   len(catalog.Knowledge),
		Skills:      len(catalog.Skills),
		Questions:   len(catalog.Questions),
		Templates:   len(catalog.Templates),
		Users:       len(catalog.Users),
		Warnings:    warnings,
	}
	s.logger.Info().
		Int("questions", summary.Questions).
		Int("templates", summary.Templates).
		Int("users", summary.Users).
		Msg("catalog seeded")
	return summary, nil
}

func (s *seedService) buildCatalog(doc dto.CatalogDocument) (repository.Catalog, []string, error) {
	var catalog repository.Catalog
	warnings := []string{}

	for _, d := range doc.Departments {
		catalog.Departments = append(catalog.Departments, models.Department{
			ID:          d.ID,
			Name:        s.label(d.Name),
			Description: s.label(d.Description),
			IsActive:    activeOrDefault(d.Active),
		})
	}

	for _, k := range doc.Knowledge {
		catalog.Knowledge = append(catalog.Knowledge, models.Knowledge{
			ID:           k.ID,
			Name:         s.label(k.Name),
			DepartmentID: k.DepartmentID,
			IsActive:     activeOrDefault(k.Active),
		})
	}

	for _, sk := range doc.Skills {
		if sk.DepartmentID == nil {
			return repository.Catalog{}, nil, fmt.Errorf("%w: skill %d has no department", ErrValidation, sk.ID)
		}
		catalog.Skills = append(catalog.Skills, models.Skill{
			ID:           sk.ID,
			Name:         s.label(sk.Name),
			DepartmentID: *sk.DepartmentID,
			IsActive:     activeOrDefault(sk.Active),
		})
	}

	questionIDs := make(map[uint]struct{}, len(doc.Questions))
	for _, q := range doc.Questions {
		weight := models.DefaultQuestionWeight
		if q.Weight != nil {
			weight = *q.Weight
		}
		section := s.label(q.Section)
		if section == "" {
			section = models.DefaultSection
		}
		catalog.Questions = append(catalog.Questions, models.Question{
			ID:                  q.ID,
			Text:                strings.TrimSpace(q.Text),
			Section:             section,
			Weight:              weight,
			CategoryType:        models.CategoryType(q.CategoryType),
			CategoryReferenceID: q.CategoryID,
			IsActive:            activeOrDefault(q.Active),
		})
		questionIDs[q.ID] = struct{}{}
	}

	for _, t := range doc.Templates {
		limit := t.TimeLimitMinutes
		if limit <= 0 {
			limit = models.DefaultTimeLimitMinutes
		}
		links := make([]models.TemplateQuestion, 0, len(t.QuestionIDs))
		for i, qid := range t.QuestionIDs {
			if _, ok := questionIDs[qid]; !ok {
				warnings = append(warnings, fmt.Sprintf("template %d references question %d which is not in this catalog", t.ID, qid))
			}
			links = append(links, models.TemplateQuestion{TemplateID: t.ID, Position: i + 1, QuestionID: qid})
		}
		catalog.Templates = append(catalog.Templates, models.Template{
			ID:                  t.ID,
			Name:                s.label(t.Name),
			CategoryType:        models.CategoryType(t.CategoryType),
			CategoryReferenceID: t.CategoryID,
			TimeLimitMinutes:    limit,
			IsActive:            activeOrDefault(t.Active),
			Questions:           links,
		})
	}

	for _, u := range doc.Users {
		role := strings.TrimSpace(u.Role)
		if role == "" {
			role = models.UserRoleWorker
		}
		catalog.Users = append(catalog.Users, models.User{
			ID:           u.ID,
			FullName:     s.label(u.FullName),
			Email:        strings.TrimSpace(u.Email),
			Role:         role,
			DepartmentID: u.DepartmentID,
			IsActive:     activeOrDefault(u.Active),
		})
	}

	return catalog, warnings, nil
}

func (s *seedService) label(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}

func activeOrDefault(active *bool) bool {
	if active == nil {
		return true
	}
	return *active
}
