package config

import "errors"

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrConfigIO       = errors.New("config_io")
	ErrConfigSyntax   = errors.New("config_syntax")
	ErrConfigSemantic = errors.New("config_semantic")
)

// FieldError is a semantic rejection scoped to one field of the document,
// e.g. ports[0].channels[1].id_range.max.
type FieldError struct {
	Path   string
	Reason string
}

func (e *FieldError) Error() string { return e.Path + ": " + e.Reason }

// Is makes every FieldError match ErrConfigSemantic.
func (e *FieldError) Is(target error) bool { return target == ErrConfigSemantic }

func fieldErr(path, reason string) error { return &FieldError{Path: path, Reason: reason} }
