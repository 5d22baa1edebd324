// Package dialect detects, validates and rewrites the hibernate.dialect
// property of a persistence descriptor.
package dialect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Namespace is the package every accepted dialect class lives in.
const Namespace = "org.hibernate.dialect"

// Default is the dialect written when none is configured.
const Default = "org.hibernate.dialect.PostgreSQL95Dialect"

var (
	// qualifiedClass is a single class directly inside Namespace.
	qualifiedClass = regexp.MustCompile(`^org\.hibernate\.dialect\.[A-Za-z_][A-Za-z0-9_]*$`)
	postgresFamily = regexp.MustCompile(`PostgreSQL[89]?[0-5]?Dialect$`)
)

// Kind classifies why a dialect was rejected.
type Kind int

const (
	InvalidNamespace Kind = iota + 1
	NotPostgresDialect
	UnknownDialect
	CatalogUnreachable
)

func (k Kind) String() string {
	switch k {
	case InvalidNamespace:
		return "InvalidNamespace"
	case NotPostgresDialect:
		return "NotPostgresDialect"
	case UnknownDialect:
		return "UnknownDialect"
	case CatalogUnreachable:
		return "CatalogUnreachable"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ValidationError reports a rejected dialect value.
type ValidationError struct {
	Kind  Kind
	Value string
	// Reason names the violated constraint.
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid hibernate dialect %q (%s): %s", e.Value, e.Kind, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Hint tells the operator how to get past the failure.
func (e *ValidationError) Hint() string {
	switch e.Kind {
	case CatalogUnreachable:
		return "The dialect catalog could not be reached. Retry the build, or set\n" +
			"HIBERNATE_DIALECT_VALIDATE=false to skip the online check."
	default:
		return "Set HIBERNATE_DIALECT to a PostgreSQL dialect such as\n" +
			Default + ", or set HIBERNATE_DIALECT_AUTO_PATCH=false\n" +
			"to leave persistence.xml untouched."
	}
}

// IsKind reports whether err is a ValidationError of kind k.
func IsKind(err error, k Kind) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == k
}

// Catalog answers whether a fully qualified dialect class exists.
type Catalog interface {
	Exists(ctx context.Context, class string) (bool, error)
}

// Validator runs the namespace, family and catalog checks in that order.
// A nil Catalog skips the last one.
type Validator struct {
	Catalog Catalog
}

// CheckLocal runs the two offline checks.
func CheckLocal(value string) error {
	if !qualifiedClass.MatchString(value) {
		return &ValidationError{
			Kind:   InvalidNamespace,
			Value:  value,
			Reason: fmt.Sprintf("must be a fully qualified class name in the %s package", Namespace),
		}
	}
	if !postgresFamily.MatchString(value) {
		return &ValidationError{
			Kind:   NotPostgresDialect,
			Value:  value,
			Reason: "the class name must end in PostgreSQL[8|9][0-5]Dialect, e.g. PostgreSQL95Dialect",
		}
	}
	return nil
}

// Validate returns nil when value is an existing PostgreSQL dialect.
func (v *Validator) Validate(ctx context.Context, value string) error {
	if err := CheckLocal(value); err != nil {
		return err
	}
	if v == nil || v.Catalog == nil {
		return nil
	}
	ok, err := v.Catalog.Exists(ctx, value)
	if err != nil {
		return &ValidationError{
			Kind:   CatalogUnreachable,
			Value:  value,
			Reason: "the dialect catalog did not answer",
			Err:    err,
		}
	}
	if !ok {
		return &ValidationError{
			Kind:   UnknownDialect,
			Value:  value,
			Reason: "no such class in the Hibernate dialect catalog",
		}
	}
	return nil
}
