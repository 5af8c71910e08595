package sync

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/mtpsync/mtpsync/pkg/errors"
)

// SavePlan writes the plan as indented JSON, creating parent directories as
// needed.
func SavePlan(fs afero.Fs, path string, plan *Plan) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WithContext(err, "create plan directory")
	}

	planBytes, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return errors.WithContext(err, "marshal plan")
	}

	if err := afero.WriteFile(fs, path, planBytes, 0644); err != nil {
		return errors.WithContext(err, "write plan")
	}
	return nil
}

// LoadPlan reads a plan written by SavePlan.
func LoadPlan(fs afero.Fs, path string) (*Plan, error) {
	planBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: path}
		}
		return nil, errors.WithContext(err, "read plan")
	}

	plan := NewPlan()
	if err := json.Unmarshal(planBytes, plan); err != nil {
		return nil, errors.WithContext(err, "parse plan")
	}
	return plan, nil
}

// SaveRetryPlan persists the failed entries of a run under a freshly
// generated name in retryDir, so retry plans from different runs never
// collide. The path of the new plan is returned.
func SaveRetryPlan(fs afero.Fs, retryDir string, plan *Plan) (string, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	path := filepath.Join(retryDir, token+".json")
	if err := SavePlan(fs, path, plan); err != nil {
		return "", err
	}
	return path, nil
}

// LatestPlan resolves the plan to execute when none was given explicitly:
// the default plan if it exists, otherwise the most recently modified retry
// plan. The second return is false if neither exists.
func LatestPlan(fs afero.Fs, defaultPath, retryDir string) (string, bool, error) {
	if exists, err := afero.Exists(fs, defaultPath); err != nil {
		return "", false, errors.WithContext(err, "stat default plan")
	} else if exists {
		return defaultPath, true, nil
	}

	entries, err := afero.ReadDir(fs, retryDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errors.WithContext(err, "read retry directory")
	}

	var newest os.FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if newest == nil || entry.ModTime().After(newest.ModTime()) {
			newest = entry
		}
	}
	if newest == nil {
		return "", false, nil
	}
	return filepath.Join(retryDir, newest.Name()), true, nil
}
