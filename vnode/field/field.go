// Package field provides fluent builders for declaring the property schema
// of a node type.
//
// Property names follow graph conventions (camelCase):
//
//	field.String("title").NotEmpty()
//	field.Int("year").Min(1800)
//	field.Slug("slugId")
//
// Properties are required by default; use Nullable to allow absent values.
package field

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// A Kind classifies the raw value a property holds.
type Kind int

// Property kinds.
const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
	KindUUID
	KindSlug
	KindStringList
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindUUID:
		return "uuid"
	case KindSlug:
		return "slug"
	case KindStringList:
		return "string list"
	default:
		return "unknown"
	}
}

// Definition is implemented by all property builders.
type Definition interface {
	Descriptor() *Descriptor
}

// Descriptor holds the declared schema of a single property.
type Descriptor struct {
	Name       string
	Kind       Kind
	Nullable   bool
	validators []func(any) error
}

// Descriptor implements Definition, so a bare descriptor can be reused.
func (d *Descriptor) Descriptor() *Descriptor { return d }

// Validate checks a raw property value against the descriptor. A nil value
// passes only for nullable properties.
func (d *Descriptor) Validate(v any) error {
	if v == nil {
		if d.Nullable {
			return nil
		}
		return errors.New("value is required")
	}
	cv, err := coerce(d.Kind, v)
	if err != nil {
		return err
	}
	for _, fn := range d.validators {
		if err := fn(cv); err != nil {
			return err
		}
	}
	return nil
}

// coerce normalizes a raw value to the canonical Go type for the kind.
// Integer widths vary by transport (the Neo4j driver returns int64), so
// numeric kinds accept the common widths.
func coerce(k Kind, v any) (any, error) {
	switch k {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		default:
			return nil, fmt.Errorf("expected int, got %T", v)
		}
	case KindFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		default:
			return nil, fmt.Errorf("expected float, got %T", v)
		}
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil
	case KindTime:
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("expected time, got %T", v)
		}
		return t, nil
	case KindUUID:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected uuid string, got %T", v)
		}
		if _, err := uuid.Parse(s); err != nil {
			return nil, fmt.Errorf("invalid uuid %q", s)
		}
		return s, nil
	case KindSlug:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected slug string, got %T", v)
		}
		s = norm.NFC.String(s)
		if !slugRe.MatchString(s) {
			return nil, fmt.Errorf("invalid slug %q", s)
		}
		return s, nil
	case KindStringList:
		switch l := v.(type) {
		case []string:
			return l, nil
		case []any:
			out := make([]string, len(l))
			for i, e := range l {
				s, ok := e.(string)
				if !ok {
					return nil, fmt.Errorf("expected string list, got %T element", e)
				}
				out[i] = s
			}
			return out, nil
		default:
			return nil, fmt.Errorf("expected string list, got %T", v)
		}
	default:
		return nil, fmt.Errorf("unknown kind %d", k)
	}
}

// slugRe matches human-assigned secondary keys: unicode letters or digits,
// optionally separated by single hyphens or dots.
var slugRe = regexp.MustCompile(`^[\p{L}\p{N}]+(?:[-.][\p{L}\p{N}]+)*$`)

// NormalizeSlug returns the NFC-normalized form of a slug, as stored and
// matched by the framework.
func NormalizeSlug(s string) string {
	return norm.NFC.String(s)
}

// IsValidSlug reports whether s is a well-formed slug after normalization.
func IsValidSlug(s string) bool {
	return slugRe.MatchString(norm.NFC.String(s))
}

// StringBuilder builds a string property.
type StringBuilder struct{ desc *Descriptor }

// String returns a builder for a string property with the given name.
func String(name string) *StringBuilder {
	return &StringBuilder{desc: &Descriptor{Name: name, Kind: KindString}}
}

// Nullable allows the property to be absent.
func (b *StringBuilder) Nullable() *StringBuilder {
	b.desc.Nullable = true
	return b
}

// NotEmpty rejects the empty string.
func (b *StringBuilder) NotEmpty() *StringBuilder {
	b.desc.validators = append(b.desc.validators, func(v any) error {
		if v.(string) == "" {
			return errors.New("value must not be empty")
		}
		return nil
	})
	return b
}

// MaxLen limits the value length in bytes.
func (b *StringBuilder) MaxLen(n int) *StringBuilder {
	b.desc.validators = append(b.desc.validators, func(v any) error {
		if len(v.(string)) > n {
			return fmt.Errorf("value is longer than %d bytes", n)
		}
		return nil
	})
	return b
}

// Match rejects values not matching the regular expression.
func (b *StringBuilder) Match(re *regexp.Regexp) *StringBuilder {
	b.desc.validators = append(b.desc.validators, func(v any) error {
		if !re.MatchString(v.(string)) {
			return fmt.Errorf("value does not match %q", re)
		}
		return nil
	})
	return b
}

// Values restricts the property to the given set (enum-like).
func (b *StringBuilder) Values(vs ...string) *StringBuilder {
	b.desc.validators = append(b.desc.validators, func(v any) error {
		s := v.(string)
		for _, allowed := range vs {
			if s == allowed {
				return nil
			}
		}
		return fmt.Errorf("value %q is not one of the allowed values", s)
	})
	return b
}

// Descriptor implements Definition.
func (b *StringBuilder) Descriptor() *Descriptor { return b.desc }

// IntBuilder builds an integer property.
type IntBuilder struct{ desc *Descriptor }

// Int returns a builder for an integer property with the given name.
func Int(name string) *IntBuilder {
	return &IntBuilder{desc: &Descriptor{Name: name, Kind: KindInt}}
}

// Nullable allows the property to be absent.
func (b *IntBuilder) Nullable() *IntBuilder {
	b.desc.Nullable = true
	return b
}

// Min rejects values below n.
func (b *IntBuilder) Min(n int64) *IntBuilder {
	b.desc.validators = append(b.desc.validators, func(v any) error {
		if v.(int64) < n {
			return fmt.Errorf("value is less than %d", n)
		}
		return nil
	})
	return b
}

// Max rejects values above n.
func (b *IntBuilder) Max(n int64) *IntBuilder {
	b.desc.validators = append(b.desc.validators, func(v any) error {
		if v.(int64) > n {
			return fmt.Errorf("value is greater than %d", n)
		}
		return nil
	})
	return b
}

// Descriptor implements Definition.
func (b *IntBuilder) Descriptor() *Descriptor { return b.desc }

// FloatBuilder builds a float property.
type FloatBuilder struct{ desc *Descriptor }

// Float returns a builder for a float property with the given name.
func Float(name string) *FloatBuilder {
	return &FloatBuilder{desc: &Descriptor{Name: name, Kind: KindFloat}}
}

// Nullable allows the property to be absent.
func (b *FloatBuilder) Nullable() *FloatBuilder {
	b.desc.Nullable = true
	return b
}

// Min rejects values below n.
func (b *FloatBuilder) Min(n float64) *FloatBuilder {
	b.desc.validators = append(b.desc.validators, func(v any) error {
		if v.(float64) < n {
			return fmt.Errorf("value is less than %v", n)
		}
		return nil
	})
	return b
}

// Max rejects values above n.
func (b *FloatBuilder) Max(n float64) *FloatBuilder {
	b.desc.validators = append(b.desc.validators, func(v any) error {
		if v.(float64) > n {
			return fmt.Errorf("value is greater than %v", n)
		}
		return nil
	})
	return b
}

// Descriptor implements Definition.
func (b *FloatBuilder) Descriptor() *Descriptor { return b.desc }

// BoolBuilder builds a boolean property.
type BoolBuilder struct{ desc *Descriptor }

// Bool returns a builder for a boolean property with the given name.
func Bool(name string) *BoolBuilder {
	return &BoolBuilder{desc: &Descriptor{Name: name, Kind: KindBool}}
}

// Nullable allows the property to be absent.
func (b *BoolBuilder) Nullable() *BoolBuilder {
	b.desc.Nullable = true
	return b
}

// Descriptor implements Definition.
func (b *BoolBuilder) Descriptor() *Descriptor { return b.desc }

// TimeBuilder builds a time property.
type TimeBuilder struct{ desc *Descriptor }

// Time returns a builder for a time property with the given name.
func Time(name string) *TimeBuilder {
	return &TimeBuilder{desc: &Descriptor{Name: name, Kind: KindTime}}
}

// Nullable allows the property to be absent.
func (b *TimeBuilder) Nullable() *TimeBuilder {
	b.desc.Nullable = true
	return b
}

// Descriptor implements Definition.
func (b *TimeBuilder) Descriptor() *Descriptor { return b.desc }

// UUIDBuilder builds a UUID-string property.
type UUIDBuilder struct{ desc *Descriptor }

// UUID returns a builder for a UUID property with the given name.
func UUID(name string) *UUIDBuilder {
	return &UUIDBuilder{desc: &Descriptor{Name: name, Kind: KindUUID}}
}

// Nullable allows the property to be absent.
func (b *UUIDBuilder) Nullable() *UUIDBuilder {
	b.desc.Nullable = true
	return b
}

// Descriptor implements Definition.
func (b *UUIDBuilder) Descriptor() *Descriptor { return b.desc }

// SlugBuilder builds a slug property (a human-assigned secondary key).
type SlugBuilder struct{ desc *Descriptor }

// Slug returns a builder for a slug property with the given name.
func Slug(name string) *SlugBuilder {
	return &SlugBuilder{desc: &Descriptor{Name: name, Kind: KindSlug}}
}

// Nullable allows the property to be absent.
func (b *SlugBuilder) Nullable() *SlugBuilder {
	b.desc.Nullable = true
	return b
}

// Descriptor implements Definition.
func (b *SlugBuilder) Descriptor() *Descriptor { return b.desc }

// StringListBuilder builds a list-of-strings property.
type StringListBuilder struct{ desc *Descriptor }

// StringList returns a builder for a string-list property with the given name.
func StringList(name string) *StringListBuilder {
	return &StringListBuilder{desc: &Descriptor{Name: name, Kind: KindStringList}}
}

// Nullable allows the property to be absent.
func (b *StringListBuilder) Nullable() *StringListBuilder {
	b.desc.Nullable = true
	return b
}

// NotEmpty rejects the empty list.
func (b *StringListBuilder) NotEmpty() *StringListBuilder {
	b.desc.validators = append(b.desc.validators, func(v any) error {
		if len(v.([]string)) == 0 {
			return errors.New("list must not be empty")
		}
		return nil
	})
	return b
}

// Descriptor implements Definition.
func (b *StringListBuilder) Descriptor() *Descriptor { return b.desc }
