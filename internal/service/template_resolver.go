package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/certeval-api/internal/models"
	"github.com/noah-isme/certeval-api/internal/repository"
	"github.com/noah-isme/certeval-api/internal/scoring"
)

// ResolvedTemplate is a template with its live questions in template order.
type ResolvedTemplate struct {
	Template         models.Template
	Category         models.CategoryRef
	CategoryName     string
	Questions        []scoring.Question
	MissingQuestions []uint
}

// TemplateResolver loads a template together with everything the scoring engine needs.
type TemplateResolver interface {
	Resolve(ctx context.Context, templateID uint) (ResolvedTemplate, error)
}

type templateResolver struct {
	catalog   repository.CatalogRepository
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewTemplateResolver builds a resolver over the catalog repository.
func NewTemplateResolver(catalog repository.CatalogRepository, logger zerolog.Logger) TemplateResolver {
	return &templateResolver{
		catalog:   catalog,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "template_resolver").Logger(),
	}
}

func (r *templateResolver) Resolve(ctx context.Context, templateID uint) (ResolvedTemplate, error) {
	template, err := r.catalog.GetTemplate(ctx, templateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ResolvedTemplate{}, ErrTemplateNotFound
		}
		return ResolvedTemplate{}, fmt.Errorf("%w: load template: %w", ErrPersistence, err)
	}

	ref, err := template.CategoryRef()
	if err != nil {
		return ResolvedTemplate{}, fmt.Errorf("%w: template %d: %w", ErrValidation, templateID, err)
	}

	categoryName, err := r.catalog.CategoryName(ctx, ref)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		r.logger.Warn().Uint("template_id", templateID).Str("category_type", string(ref.Type())).Uint("category_id", ref.RefID()).Msg("template category missing, using generic subject")
		categoryName = scoring.GenericSubject
	case err != nil:
		return ResolvedTemplate{}, fmt.Errorf("%w: load category: %w", ErrPersistence, err)
	}
	categoryName = r.label(categoryName)
	if categoryName == "" {
		categoryName = scoring.GenericSubject
	}

	ids := make([]uint, 0, len(template.Questions))
	for _, link := range template.Questions {
		ids = append(ids, link.QuestionID)
	}

	live, err := r.catalog.FindActiveQuestions(ctx, ids)
	if err != nil {
		return ResolvedTemplate{}, fmt.Errorf("%w: load questions: %w", ErrPersistence, err)
	}
	byID := make(map[uint]models.Question, len(live))
	for _, q := range live {
		byID[q.ID] = q
	}

	resolved := ResolvedTemplate{
		Template:     template,
		Category:     ref,
		CategoryName: categoryName,
		Questions:    make([]scoring.Question, 0, len(ids)),
	}
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			resolved.MissingQuestions = append(resolved.MissingQuestions, id)
			continue
		}
		resolved.Questions = append(resolved.Questions, scoring.Question{
			ID:      q.ID,
			Weight:  q.EffectiveWeight(),
			Section: r.label(q.Section),
		})
	}

	return resolved, nil
}

// label strips markup from names that end up in feedback cards and chart legends.
// Entities are decoded again so "Health & Safety" survives as plain text.
func (r *templateResolver) label(value string) string {
	return strings.TrimSpace(html.UnescapeString(r.sanitizer.Sanitize(value)))
}
