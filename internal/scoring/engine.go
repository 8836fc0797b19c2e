// Package scoring turns per-question grading deductions into evaluation totals,
// per-section ratings and the per-question audit trail. It performs no I/O.
package scoring

import (
	"errors"
	"math"
	"strings"

	"github.com/noah-isme/certeval-api/internal/models"
)

const (
	// DefaultPassThreshold is the minimum percentage that counts as PASS.
	DefaultPassThreshold = 60.0
	// MaxRating is the top of the section rating scale used by the radar charts.
	MaxRating = 4.0
	// GenericSubject is the fallback subject used when a template has no resolvable category name.
	GenericSubject = "General Assessment"

	// passTolerance absorbs float summation error in weighted totals. It sits far
	// below the two-decimal precision percentages are reported with.
	passTolerance = 1e-9
)

var (
	// ErrEmptyQuestionSet indicates there was nothing to grade.
	ErrEmptyQuestionSet = errors.New("graded question set is empty")
	// ErrInvalidCategory indicates the category type is neither Knowledge nor Skill.
	ErrInvalidCategory = errors.New("invalid category type")
)

// Question is the scoring view of a resolved question.
type Question struct {
	ID      uint
	Weight  float64
	Section string
}

// Deductions maps question IDs to the points the grader subtracted.
// Missing entries mean full credit.
type Deductions map[uint]float64

// Policy holds the tunable scoring constants.
type Policy struct {
	PassThreshold float64
}

// DefaultPolicy returns the policy with the standard 60% pass mark.
func DefaultPolicy() Policy {
	return Policy{PassThreshold: DefaultPassThreshold}
}

// Evaluation is the computed outcome for one graded template.
type Evaluation struct {
	TotalScore    float64
	TotalMaxScore float64
	Percentage    float64
	Status        models.ResultStatus
	Sections      []models.SectionSummary
	Answers       []models.AnswerDetail
}

type sectionTotals struct {
	max    float64
	scored float64
}

// Compute scores the questions in order. Deductions outside [0, weight] are
// clamped rather than rejected so one malformed entry cannot abort a grading
// session; see ClampDeduction.
func Compute(questions []Question, deductions Deductions, category models.CategoryType, subjectFallback string, policy Policy) (Evaluation, error) {
	if len(questions) == 0 {
		return Evaluation{}, ErrEmptyQuestionSet
	}
	if !category.Valid() {
		return Evaluation{}, ErrInvalidCategory
	}

	fallback := strings.TrimSpace(subjectFallback)
	order := make([]string, 0, 4)
	sections := make(map[string]*sectionTotals, 4)
	answers := make([]models.AnswerDetail, 0, len(questions))

	var totalScore, totalMax float64
	for _, q := range questions {
		weight := q.Weight
		if weight <= 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = models.DefaultQuestionWeight
		}
		deduction := ClampDeduction(deductions[q.ID], weight)
		score := weight - deduction

		totalMax += weight
		totalScore += score

		answers = append(answers, models.AnswerDetail{
			QuestionID: q.ID,
			IsCorrect:  deduction == 0,
			Weight:     weight,
		})

		key := SectionKey(q.Section, fallback)
		totals, ok := sections[key]
		if !ok {
			totals = &sectionTotals{}
			sections[key] = totals
			order = append(order, key)
		}
		totals.max += weight
		totals.scored += score
	}

	summaries := make([]models.SectionSummary, 0, len(order))
	for _, key := range order {
		totals := sections[key]
		summaries = append(summaries, models.SectionSummary{
			Subject:      key,
			MaxPoints:    totals.max,
			ScoredPoints: totals.scored,
			Rating:       Rating(totals.scored, totals.max),
			CategoryType: category,
		})
	}

	if len(summaries) == 1 && summaries[0].Subject == models.DefaultSection && IsSpecificSubject(fallback) {
		summaries[0].Subject = fallback
	}

	percentage := Percentage(totalScore, totalMax)

	return Evaluation{
		TotalScore:    totalScore,
		TotalMaxScore: totalMax,
		Percentage:    percentage,
		Status:        policy.Status(percentage),
		Sections:      summaries,
		Answers:       answers,
	}, nil
}

// ClampDeduction forces a deduction into [0, weight]. NaN counts as no deduction.
func ClampDeduction(deduction, weight float64) float64 {
	switch {
	case math.IsNaN(deduction) || deduction <= 0:
		return 0
	case deduction >= weight:
		return weight
	default:
		return deduction
	}
}

// SectionKey picks the aggregation label for a question.
func SectionKey(section, fallback string) string {
	if trimmed := strings.TrimSpace(section); trimmed != "" {
		return trimmed
	}
	if trimmed := strings.TrimSpace(fallback); trimmed != "" {
		return trimmed
	}
	return models.DefaultSection
}

// IsSpecificSubject reports whether subject is a real category name rather than a placeholder.
func IsSpecificSubject(subject string) bool {
	trimmed := strings.TrimSpace(subject)
	return trimmed != "" && trimmed != models.DefaultSection && trimmed != GenericSubject
}

// Percentage returns score as a share of max in [0, 100]; zero when max is zero.
func Percentage(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return clamp(score*100/max, 0, 100)
}

// Rating normalises a section score onto the 0-4 scale, rounded to two decimals.
func Rating(scored, max float64) float64 {
	if max <= 0 {
		return 0
	}
	rating := clamp(scored/max*MaxRating, 0, MaxRating)
	return math.Round(rating*100) / 100
}

// Status returns PASS when percentage reaches the threshold, allowing passTolerance
// for rounding noise: 59.9999999995 passes a threshold of 60, 59.999999 does not.
func (p Policy) Status(percentage float64) models.ResultStatus {
	threshold := p.PassThreshold
	if threshold <= 0 {
		threshold = DefaultPassThreshold
	}
	if percentage+passTolerance >= threshold {
		return models.ResultPass
	}
	return models.ResultFail
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
