// Package errs defines the small typed error kinds the memory core surfaces
// across package boundaries. Callers use errors.As to inspect a kind and
// decide on retry/fallback policy; everything else is a plain wrapped error.
package errs

import "fmt"

// StorageError wraps a failure from the Store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// VectorizeError wraps a failure from VectorIndex or the vectorize pipeline.
type VectorizeError struct {
	Op  string
	Err error
}

func (e *VectorizeError) Error() string { return fmt.Sprintf("vectorize: %s: %v", e.Op, e.Err) }
func (e *VectorizeError) Unwrap() error { return e.Err }

// RetrievalError wraps a failure inside HybridRetriever.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string { return fmt.Sprintf("retrieval: %s: %v", e.Op, e.Err) }
func (e *RetrievalError) Unwrap() error { return e.Err }

// LLMErrorKind enumerates the LLM client's failure taxonomy.
type LLMErrorKind string

const (
	LLMTimeout       LLMErrorKind = "TIMEOUT"
	LLMRateLimit     LLMErrorKind = "RATE_LIMIT"
	LLMServerError   LLMErrorKind = "SERVER_ERROR"
	LLMAuthError     LLMErrorKind = "AUTH_ERROR"
	LLMInvalidParams LLMErrorKind = "INVALID_PARAMS"
	LLMParseError    LLMErrorKind = "PARSE"
)

// LLMError wraps an LLM client failure with its kind.
type LLMError struct {
	Kind LLMErrorKind
	Err  error
}

func (e *LLMError) Error() string { return fmt.Sprintf("llm(%s): %v", e.Kind, e.Err) }
func (e *LLMError) Unwrap() error { return e.Err }

// Retryable reports whether UCM should retry this kind via the fallback chain.
func (e *LLMError) Retryable() bool {
	switch e.Kind {
	case LLMTimeout, LLMRateLimit, LLMServerError:
		return true
	default:
		return false
	}
}

// ClassificationError wraps a SceneClassifier failure.
type ClassificationError struct {
	Op  string
	Err error
}

func (e *ClassificationError) Error() string { return fmt.Sprintf("classification: %s: %v", e.Op, e.Err) }
func (e *ClassificationError) Unwrap() error { return e.Err }

// ConfigError wraps a configuration load/parse failure.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config: %s: %v", e.Op, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// QuotaExceeded marks a budget or rate-limit ceiling hit (not fatal).
type QuotaExceeded struct {
	Resource string
	Limit    int
}

func (e *QuotaExceeded) Error() string {
	return fmt.Sprintf("quota exceeded: %s (limit %d)", e.Resource, e.Limit)
}

// ConflictDetected is not an error in the failure sense — it is reported as
// a write-side effect of LifecycleManager's conflict detection, surfaced
// through the same error-kind channel so observability can log it uniformly.
type ConflictDetected struct {
	Entity, Object     string
	OldMemoryID        string
	NewMemoryID        string
	ReflectionMemoryID string
}

func (e *ConflictDetected) Error() string {
	return fmt.Sprintf("conflict detected: %s/%s (%s -> %s, reflection %s)",
		e.Entity, e.Object, e.OldMemoryID, e.NewMemoryID, e.ReflectionMemoryID)
}
