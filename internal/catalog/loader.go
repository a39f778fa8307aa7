// Package catalog loads the static assessment-type catalog from YAML files.
// One file per assessment domain (bcdr, naming, tagging, security); the
// catalog is immutable after load.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/govlens/assessment-console/internal/models"
)

// Loader manages loading and caching of assessment domains and types
type Loader struct {
	mu      sync.RWMutex
	domains map[string]*models.AssessmentDomain
	types   map[int]*models.AssessmentType
}

// NewLoader creates a new catalog loader
func NewLoader() *Loader {
	return &Loader{
		domains: make(map[string]*models.AssessmentDomain),
		types:   make(map[int]*models.AssessmentType),
	}
}

// LoadFromDir loads all domain YAML files from a directory
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading assessment catalog", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load catalog domain", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("assessment catalog loaded", "domains", loaded, "total_files", len(files))
	return nil
}

// LoadFromFile loads a single domain from a YAML file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var df domainFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	id := df.ID
	if id == "" {
		base := filepath.Base(path)
		id = base[:len(base)-len(filepath.Ext(base))]
	}
	if df.Name == "" {
		return fmt.Errorf("domain name is required")
	}
	if len(df.Types) == 0 {
		return fmt.Errorf("domain %q declares no assessment types", id)
	}

	domain := &models.AssessmentDomain{
		ID:          id,
		Name:        df.Name,
		Description: df.Description,
		TypesCount:  len(df.Types),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, tf := range df.Types {
		if tf.ID <= 0 {
			return fmt.Errorf("domain %q: type %q needs a positive id", id, tf.Name)
		}
		if existing, ok := l.types[tf.ID]; ok {
			return fmt.Errorf("type id %d already used by %q", tf.ID, existing.Name)
		}

		category := models.CategoryIndividual
		if strings.EqualFold(tf.Category, string(models.CategoryComprehensive)) {
			category = models.CategoryComprehensive
		}

		l.types[tf.ID] = &models.AssessmentType{
			ID:                tf.ID,
			DomainID:          id,
			Name:              tf.Name,
			Description:       tf.Description,
			EstimatedDuration: tf.EstimatedDuration,
			Recommended:       tf.Recommended,
			Category:          category,
		}
	}

	l.domains[id] = domain
	slog.Info("catalog domain loaded", "id", id, "name", df.Name, "types", len(df.Types))
	return nil
}

// ListDomains returns all loaded domains sorted by id
func (l *Loader) ListDomains() []*models.AssessmentDomain {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.AssessmentDomain, 0, len(l.domains))
	for _, d := range l.domains {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetDomain returns a domain by ID
func (l *Loader) GetDomain(id string) *models.AssessmentDomain {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.domains[id]
}

// ListTypes returns all types for a given domain sorted by id
func (l *Loader) ListTypes(domainID string) []*models.AssessmentType {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*models.AssessmentType
	for _, t := range l.types {
		if t.DomainID == domainID {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetType returns an assessment type by its numeric id
func (l *Loader) GetType(id int) *models.AssessmentType {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.types[id]
}

// --- YAML file structs ---

type domainFile struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Types       []typeFile `yaml:"types"`
}

type typeFile struct {
	ID                int    `yaml:"id"`
	Name              string `yaml:"name"`
	Description       string `yaml:"description"`
	EstimatedDuration string `yaml:"estimated_duration"`
	Recommended       bool   `yaml:"recommended"`
	Category          string `yaml:"category"`
}
