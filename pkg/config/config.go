package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/mtpsync/mtpsync/pkg/errors"
)

// SupportedVersion is the config file schema version understood by this
// build.
const SupportedVersion = "v1alpha1"

// parseConfigErrTemplate is a template for when the CLI fails to parse the
// yaml configuration file. This can happen for a multitude of reasons,
// including extraneous fields and incorrect field types. However, the yaml
// library constructs errors in a way that loses context, and so we can only
// pass the error message on.
const parseConfigErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Having extra fields inside the config file\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// User contains the tunables that can be overridden from
// ~/.mtpsync/config.yaml. Every field has a working default, so the file is
// optional.
type User struct {
	Version string `json:"version"`

	// ChecksumAlgorithm selects the digest used for file comparison and
	// post-upload verification. "sha256" or "md5".
	ChecksumAlgorithm string `json:"checksumAlgorithm,omitempty"`

	// ChecksumWorkers bounds the worker pool used for batch digests.
	ChecksumWorkers int `json:"checksumWorkers,omitempty"`

	// MaxRetries is the retry budget for each device operation.
	MaxRetries int `json:"maxRetries,omitempty"`

	// RetryBackoffFactor is the exponential backoff base, in seconds.
	RetryBackoffFactor float64 `json:"retryBackoffFactor,omitempty"`

	// ScratchDir holds files downloaded from the device for comparison.
	ScratchDir string `json:"scratchDir,omitempty"`
}

func (config User) getVersion() string {
	return config.Version
}

// Default returns the configuration used when no config file exists.
func Default() User {
	return User{
		Version:            SupportedVersion,
		ChecksumAlgorithm:  "sha256",
		ChecksumWorkers:    4,
		MaxRetries:         3,
		RetryBackoffFactor: 2,
		ScratchDir:         filepath.Join(os.TempDir(), "mtpsync"),
	}
}

// ParseUser loads the user's config file if it exists, and fills in the
// defaults for any unset fields.
func ParseUser() (User, error) {
	config := Default()

	path, err := UserConfigPath()
	if err != nil {
		return User{}, errors.WithContext(err, "resolve config path")
	}

	parsed := User{}
	if err := parseConfig(path, &parsed, SupportedVersion); err != nil {
		if _, ok := errors.RootCause(err).(errors.FileNotFound); ok {
			return config, nil
		}
		return User{}, err
	}

	if parsed.ChecksumAlgorithm != "" {
		config.ChecksumAlgorithm = parsed.ChecksumAlgorithm
	}
	if parsed.ChecksumWorkers != 0 {
		config.ChecksumWorkers = parsed.ChecksumWorkers
	}
	if parsed.MaxRetries != 0 {
		config.MaxRetries = parsed.MaxRetries
	}
	if parsed.RetryBackoffFactor != 0 {
		config.RetryBackoffFactor = parsed.RetryBackoffFactor
	}
	if parsed.ScratchDir != "" {
		config.ScratchDir = parsed.ScratchDir
	}
	return config, nil
}

type configInterface interface {
	getVersion() string
}

type incompatibleVersionError struct {
	path, exp, actual string
}

func (err incompatibleVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err incompatibleVersionError) FriendlyMessage() string {
	return fmt.Sprintf("The configuration file %q is incompatible "+
		"with this version of mtpsync.\n"+
		"Expected version %q, but got %q.", err.path, err.exp, err.actual)
}

func parseConfig(path string, config configInterface, expVersion string) error {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.FileNotFound{Path: path}
		}
		return errors.WithContext(err, "read file")
	}

	err = yaml.Unmarshal(configBytes, config)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	if config.getVersion() != expVersion {
		return incompatibleVersionError{path, expVersion, config.getVersion()}
	}

	// Do a strict unmarshal to check for any extra fields. We do a non-strict
	// unmarshal first so that we can catch version errors before erroring on
	// extra fields.
	err = yaml.UnmarshalStrict(configBytes, config, yaml.DisallowUnknownFields)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}
	return nil
}

// UserConfigPath returns the location of the optional user config file.
func UserConfigPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "config.yaml"), nil
}
