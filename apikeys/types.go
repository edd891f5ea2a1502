package apikeys

import "fmt"

// KeyType identifies which upstream a key belongs to
type KeyType int

const (
	NoKey KeyType = iota
	MapsKey
	OpenAIKey
)

func (t KeyType) String() string {
	switch t {
	case MapsKey:
		return "maps"
	case OpenAIKey:
		return "openai"
	default:
		return "none"
	}
}

// ParseKeyType is the inverse of KeyType.String
func ParseKeyType(s string) (KeyType, error) {
	switch s {
	case "maps":
		return MapsKey, nil
	case "openai":
		return OpenAIKey, nil
	case "none", "":
		return NoKey, nil
	default:
		return NoKey, fmt.Errorf("unknown key type %q", s)
	}
}

// KeySource records where a key value came from
type KeySource int

const (
	// SourceLiteral is a value written into source code. It is never accepted.
	SourceLiteral KeySource = iota
	// SourceProcessEnv is a variable read from the environment of the running process.
	SourceProcessEnv
	// SourceBuildEnv is a value injected when the application is built or served.
	SourceBuildEnv
)

func (s KeySource) String() string {
	switch s {
	case SourceLiteral:
		return "literal"
	case SourceProcessEnv:
		return "process-env"
	case SourceBuildEnv:
		return "build-env"
	default:
		return fmt.Sprintf("KeySource(%d)", int(s))
	}
}

// ParseKeySource accepts the names produced by KeySource.String
func ParseKeySource(s string) (KeySource, error) {
	switch s {
	case "literal":
		return SourceLiteral, nil
	case "process-env":
		return SourceProcessEnv, nil
	case "build-env", "":
		return SourceBuildEnv, nil
	default:
		return SourceLiteral, fmt.Errorf("unknown key source %q", s)
	}
}

// APIKey represents an API key with its type
type APIKey struct {
	Key    string
	Type   KeyType
	Source KeySource
	Label  string // optional description, e.g. the variable it was read from
}

// String never prints the secret
func (k APIKey) String() string {
	return fmt.Sprintf("%s key %s (%s)", k.Type, Redact(k.Key), k.Source)
}

// KeyProvider defines an interface for providing API keys
type KeyProvider interface {
	// GetKeys returns a list of keys for a specific type
	GetKeys(keyType KeyType) []string
}

// Environment variables holding keys
const (
	EnvMapsKeys     = "GOOGLE_MAPS_API_KEYS"
	EnvMapsKey      = "GOOGLE_MAPS_API_KEY"
	EnvBuildMapsKey = "VITE_GOOGLE_MAPS_API_KEY"
	EnvOpenAIKeys   = "OPENAI_API_KEYS"
	EnvOpenAIKey    = "OPENAI_API_KEY"
)
