package apikeys

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrLiteralKey rejects keys that would have to live in source control
	ErrLiteralKey = errors.New("literal api keys are not accepted; inject the key through the environment")
	// ErrKeyNotSet means the selected source holds no value
	ErrKeyNotSet = errors.New("maps api key is not set")
	// ErrSourceDisabled means the process environment source was not enabled
	ErrSourceDisabled = errors.New("process environment key source is disabled")
)

// buildMapsKey is set at link time:
//
//	go build -ldflags "-X github.com/oneyeking31/local-explorer/apikeys.buildMapsKey=$VITE_GOOGLE_MAPS_API_KEY"
var buildMapsKey string

// ResolveOptions selects where the browser maps key is read from
type ResolveOptions struct {
	Source KeySource
	// AllowProcessEnv must be set to accept SourceProcessEnv
	AllowProcessEnv bool
	// BuildVar and ProcessVar default to VITE_GOOGLE_MAPS_API_KEY and GOOGLE_MAPS_API_KEY
	BuildVar   string
	ProcessVar string
	Getenv     func(string) string
}

// ResolveMapsKey returns the key handed to the maps widget in the browser.
// The value is read once at start-up and kept for the process lifetime.
func ResolveMapsKey(opts ResolveOptions) (APIKey, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	buildVar := opts.BuildVar
	if buildVar == "" {
		buildVar = EnvBuildMapsKey
	}
	processVar := opts.ProcessVar
	if processVar == "" {
		processVar = EnvMapsKey
	}

	switch opts.Source {
	case SourceLiteral:
		return APIKey{}, ErrLiteralKey

	case SourceProcessEnv:
		if !opts.AllowProcessEnv {
			return APIKey{}, ErrSourceDisabled
		}
		keys := SplitKeys(getenv(processVar))
		if len(keys) == 0 {
			return APIKey{}, fmt.Errorf("%w: %s is empty", ErrKeyNotSet, processVar)
		}
		return APIKey{Key: keys[0], Type: MapsKey, Source: SourceProcessEnv, Label: processVar}, nil

	case SourceBuildEnv:
		if buildMapsKey != "" {
			return APIKey{Key: buildMapsKey, Type: MapsKey, Source: SourceBuildEnv, Label: "ldflags"}, nil
		}
		keys := SplitKeys(getenv(buildVar))
		if len(keys) == 0 {
			return APIKey{}, fmt.Errorf("%w: %s is empty", ErrKeyNotSet, buildVar)
		}
		return APIKey{Key: keys[0], Type: MapsKey, Source: SourceBuildEnv, Label: buildVar}, nil

	default:
		return APIKey{}, fmt.Errorf("unsupported key source %s", opts.Source)
	}
}

// Redact keeps enough of a key to tell keys apart in logs
func Redact(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-2:]
}
