package config

import (
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/mtpsync/mtpsync/pkg/errors"
)

// RetryDirName is the subdirectory of the data directory that holds retry
// plans. Each retry plan is named with a fresh token so plans from different
// runs never collide.
const RetryDirName = ".execution_retry"

// DefaultPlanName is the file the verify flow writes its execution plan to
// when no explicit plan path is given.
const DefaultPlanName = "execution_plan.json"

// Mocked out for unit testing.
var homedirDir = homedir.Dir

// DataDir returns the directory that holds mtpsync's plans, logs, and
// config. It is created on demand.
func DataDir() (string, error) {
	home, err := homedirDir()
	if err != nil {
		return "", errors.WithContext(err, "resolve home directory")
	}

	dir := filepath.Join(home, ".mtpsync")
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", errors.WithContext(err, "create data directory")
	}
	return dir, nil
}

// DefaultPlanPath returns the location of the default execution plan.
func DefaultPlanPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, DefaultPlanName), nil
}

// RetryDir returns the directory that holds retry plans. It is created on
// demand.
func RetryDir() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(dataDir, RetryDirName)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", errors.WithContext(err, "create retry directory")
	}
	return dir, nil
}

// LogDir returns the directory that holds the sync log. It is created on
// demand.
func LogDir() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(dataDir, "logs")
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", errors.WithContext(err, "create log directory")
	}
	return dir, nil
}
