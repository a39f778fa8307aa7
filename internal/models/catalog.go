package models

import (
	"strconv"
	"strings"
)

// TypeCategory classifies an assessment type
type TypeCategory string

const (
	CategoryIndividual    TypeCategory = "Individual"
	CategoryComprehensive TypeCategory = "Comprehensive"
)

// AssessmentDomain represents a top-level assessment area (e.g., bcdr, naming, tagging)
type AssessmentDomain struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TypesCount  int    `json:"typesCount"`
}

// AssessmentType describes one runnable assessment within a domain.
// The catalog is static configuration, not persisted state.
type AssessmentType struct {
	ID                int          `json:"id"`
	DomainID          string       `json:"domainId"`
	Name              string       `json:"name"`
	Description       string       `json:"description"`
	EstimatedDuration string       `json:"estimatedDuration"` // minute range, e.g. "5-10"
	Recommended       bool         `json:"recommended"`
	Category          TypeCategory `json:"category"`
}

// defaultEstimateMinutes is used when a duration range cannot be parsed.
const defaultEstimateMinutes = 6

// EstimatedUpperMinutes returns the upper bound of the estimated duration range
func (t *AssessmentType) EstimatedUpperMinutes() int {
	s := t.EstimatedDuration
	if i := strings.LastIndex(s, "-"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "min"))
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultEstimateMinutes
	}
	return n
}
