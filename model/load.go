package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names inside an index directory. Each file holds a JSON
// array of records matching the tabular column contracts.
const (
	EntitiesFile      = "entities.json"
	RelationshipsFile = "relationships.json"
	CovariatesFile    = "covariates.json"
	TextUnitsFile     = "text_units.json"
	CommunitiesFile   = "communities.json"
	ReportsFile       = "community_reports.json"
)

// LoadGraph reads the six JSON artifacts from dir and builds a Graph.
// Covariates are optional; the other five files must exist.
func LoadGraph(dir string) (*Graph, error) {
	var in Input

	if err := loadJSON(filepath.Join(dir, EntitiesFile), &in.Entities); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, RelationshipsFile), &in.Relationships); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, TextUnitsFile), &in.TextUnits); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, CommunitiesFile), &in.Communities); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, ReportsFile), &in.Reports); err != nil {
		return nil, err
	}

	covPath := filepath.Join(dir, CovariatesFile)
	if _, err := os.Stat(covPath); err == nil {
		if err := loadJSON(covPath, &in.Covariates); err != nil {
			return nil, err
		}
	}

	return NewGraph(in)
}

func loadJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrBadData, filepath.Base(path), err)
	}
	return nil
}
