package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Falls back to v4 if v7 generation fails
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	ExperimentID ID
	SiteID       ID
	RunID        ID
)

// String conversions for domain IDs
func (id ExperimentID) String() string { return ID(id).String() }
func (id SiteID) String() string       { return ID(id).String() }
func (id RunID) String() string        { return ID(id).String() }

// NewRunID creates a fresh identifier for one analysis invocation
func NewRunID() RunID {
	return RunID(NewID())
}

// ParseExperimentID parses a string into ExperimentID
func ParseExperimentID(s string) (ExperimentID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("experiment ID cannot be empty")
	}
	return ExperimentID(s), nil
}

// ParseSiteID parses a string into SiteID
func ParseSiteID(s string) (SiteID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("site ID cannot be empty")
	}
	return SiteID(s), nil
}

// SiteKey identifies a site across experiments.
type SiteKey struct {
	Experiment ExperimentID
	Site       SiteID
}

// String renders the key as "experiment/site".
func (k SiteKey) String() string {
	return k.Experiment.String() + "/" + k.Site.String()
}
