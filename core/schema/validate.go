package schema

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/artpar/apcore/apcerrors"
)

// Mode selects how strictly the validator checks a value against a
// RuntimeSchema.
type Mode string

const (
	// ModeCoercing attempts to decode-with-coercion (e.g. numeric strings
	// become numbers) before failing. This is the default.
	ModeCoercing Mode = "coercing"
	// ModeStrict performs an exact type check with no coercion.
	ModeStrict Mode = "strict"
)

// Validator checks values against RuntimeSchema trees.
type Validator struct {
	Mode Mode
}

// NewValidator builds a Validator in coercing mode, the runtime default.
func NewValidator() *Validator {
	return &Validator{Mode: ModeCoercing}
}

// ValidateInput validates inputs against a module's input schema.
func (v *Validator) ValidateInput(value any, s *RuntimeSchema) (any, error) {
	return v.validateDirection(value, s, DirectionInput)
}

// ValidateOutput validates an output value against a module's output
// schema.
func (v *Validator) ValidateOutput(value any, s *RuntimeSchema) (any, error) {
	return v.validateDirection(value, s, DirectionOutput)
}

func (v *Validator) validateDirection(value any, s *RuntimeSchema, dir Direction) (any, error) {
	coerced, issues := v.check("", value, s)
	if len(issues) > 0 {
		sort.Slice(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
		return nil, apcerrors.SchemaValidationError(issues)
	}
	_ = dir
	return coerced, nil
}

// check recursively validates value against s, returning the (possibly
// coerced) value and a list of structured issues. A nil schema is
// permissive (KindUnknown semantics).
func (v *Validator) check(path string, value any, s *RuntimeSchema) (any, []apcerrors.ValidationIssue) {
	if s == nil || s.Kind == KindUnknown {
		return value, nil
	}

	switch s.Kind {
	case KindObject:
		return v.checkObject(path, value, s)
	case KindArray:
		return v.checkArray(path, value, s)
	case KindString:
		return v.checkString(path, value, s)
	case KindInteger:
		return v.checkNumber(path, value, s, true)
	case KindNumber:
		return v.checkNumber(path, value, s, false)
	case KindBoolean:
		return v.checkBoolean(path, value)
	case KindNull:
		if value != nil {
			return nil, []apcerrors.ValidationIssue{issue(path, "must be null", "type", "null", value)}
		}
		return nil, nil
	case KindUnion:
		return v.checkUnion(path, value, s)
	case KindIntersection:
		return v.checkIntersection(path, value, s)
	default:
		return value, nil
	}
}

func (v *Validator) checkObject(path string, value any, s *RuntimeSchema) (any, []apcerrors.ValidationIssue) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, []apcerrors.ValidationIssue{issue(path, "must be an object", "type", "object", value)}
	}

	var issues []apcerrors.ValidationIssue
	out := make(map[string]any, len(obj))

	for name := range s.Required {
		if _, present := obj[name]; !present {
			issues = append(issues, issue(childPath(path, name), "missing required property", "required", name, nil))
		}
	}

	for name, raw := range obj {
		propSchema, known := s.Properties[name]
		if !known {
			if v.Mode == ModeStrict {
				issues = append(issues, issue(childPath(path, name), "additional property not allowed", "additionalProperties", false, name))
				continue
			}
			out[name] = raw
			continue
		}
		coerced, subIssues := v.check(childPath(path, name), raw, propSchema)
		issues = append(issues, subIssues...)
		out[name] = coerced
	}

	return out, issues
}

func (v *Validator) checkArray(path string, value any, s *RuntimeSchema) (any, []apcerrors.ValidationIssue) {
	arr, ok := value.([]any)
	if !ok {
		return nil, []apcerrors.ValidationIssue{issue(path, "must be an array", "type", "array", value)}
	}
	if s.Items == nil {
		return arr, nil
	}

	var issues []apcerrors.ValidationIssue
	out := make([]any, len(arr))
	for i, item := range arr {
		coerced, subIssues := v.check(fmt.Sprintf("%s/%d", path, i), item, s.Items)
		issues = append(issues, subIssues...)
		out[i] = coerced
	}
	return out, issues
}

func (v *Validator) checkString(path string, value any, s *RuntimeSchema) (any, []apcerrors.ValidationIssue) {
	str, ok := value.(string)
	if !ok {
		if v.Mode == ModeCoercing {
			if coerced, ok := coerceToString(value); ok {
				str = coerced
			} else {
				return nil, []apcerrors.ValidationIssue{issue(path, "must be a string", "type", "string", value)}
			}
		} else {
			return nil, []apcerrors.ValidationIssue{issue(path, "must be a string", "type", "string", value)}
		}
	}

	var issues []apcerrors.ValidationIssue
	if s.MinLength != nil && len(str) < *s.MinLength {
		issues = append(issues, issue(path, fmt.Sprintf("must be at least %d characters", *s.MinLength), "minLength", *s.MinLength, len(str)))
	}
	if s.MaxLength != nil && len(str) > *s.MaxLength {
		issues = append(issues, issue(path, fmt.Sprintf("must be at most %d characters", *s.MaxLength), "maxLength", *s.MaxLength, len(str)))
	}
	if s.Pattern != "" {
		re, err := regexp.Compile(s.Pattern)
		if err == nil && !re.MatchString(str) {
			issues = append(issues, issue(path, "does not match required pattern", "pattern", s.Pattern, str))
		}
	}
	return str, issues
}

func (v *Validator) checkNumber(path string, value any, s *RuntimeSchema, integer bool) (any, []apcerrors.ValidationIssue) {
	f, err := toFloat64(value)
	if _, isString := value.(string); isString && v.Mode == ModeStrict {
		err = fmt.Errorf("string %q is not a number", value)
	}
	if err != nil {
		kind := "number"
		if integer {
			kind = "integer"
		}
		return nil, []apcerrors.ValidationIssue{issue(path, "must be a "+kind, "type", kind, value)}
	}
	if integer && f != float64(int64(f)) {
		if v.Mode == ModeStrict {
			return nil, []apcerrors.ValidationIssue{issue(path, "must be an integer", "type", "integer", value)}
		}
		f = float64(int64(f))
	}

	var issues []apcerrors.ValidationIssue
	if s.Minimum != nil && f < *s.Minimum {
		issues = append(issues, issue(path, fmt.Sprintf("must be >= %v", *s.Minimum), "minimum", *s.Minimum, f))
	}
	if s.Maximum != nil && f > *s.Maximum {
		issues = append(issues, issue(path, fmt.Sprintf("must be <= %v", *s.Maximum), "maximum", *s.Maximum, f))
	}
	if s.ExclusiveMinimum != nil && f <= *s.ExclusiveMinimum {
		issues = append(issues, issue(path, fmt.Sprintf("must be > %v", *s.ExclusiveMinimum), "exclusiveMinimum", *s.ExclusiveMinimum, f))
	}
	if s.ExclusiveMaximum != nil && f >= *s.ExclusiveMaximum {
		issues = append(issues, issue(path, fmt.Sprintf("must be < %v", *s.ExclusiveMaximum), "exclusiveMaximum", *s.ExclusiveMaximum, f))
	}
	if s.MultipleOf != nil && *s.MultipleOf != 0 {
		ratio := f / *s.MultipleOf
		if ratio != float64(int64(ratio)) {
			issues = append(issues, issue(path, fmt.Sprintf("must be a multiple of %v", *s.MultipleOf), "multipleOf", *s.MultipleOf, f))
		}
	}

	if integer {
		return int64(f), issues
	}
	return f, issues
}

func (v *Validator) checkBoolean(path string, value any) (any, []apcerrors.ValidationIssue) {
	b, ok := value.(bool)
	if !ok {
		return nil, []apcerrors.ValidationIssue{issue(path, "must be a boolean", "type", "boolean", value)}
	}
	return b, nil
}

func (v *Validator) checkUnion(path string, value any, s *RuntimeSchema) (any, []apcerrors.ValidationIssue) {
	if len(s.EnumValues) > 0 {
		want := fmt.Sprintf("%v", value)
		for _, allowed := range s.EnumValues {
			if fmt.Sprintf("%v", allowed) == want {
				return value, nil
			}
		}
		return nil, []apcerrors.ValidationIssue{issue(path, "value is not one of the allowed enum values", "enum", s.EnumValues, value)}
	}

	var lastIssues []apcerrors.ValidationIssue
	for _, member := range s.Members {
		coerced, issues := v.check(path, value, member)
		if len(issues) == 0 {
			return coerced, nil
		}
		lastIssues = issues
	}
	if len(s.Members) == 0 {
		return value, nil
	}
	return nil, lastIssues
}

func (v *Validator) checkIntersection(path string, value any, s *RuntimeSchema) (any, []apcerrors.ValidationIssue) {
	current := value
	var allIssues []apcerrors.ValidationIssue
	for _, member := range s.AllOf {
		coerced, issues := v.check(path, current, member)
		allIssues = append(allIssues, issues...)
		if len(issues) == 0 {
			current = coerced
		}
	}
	return current, allIssues
}

func coerceToString(v any) (string, bool) {
	switch n := v.(type) {
	case float64, float32, int, int64, int32, bool:
		return fmt.Sprintf("%v", n), true
	default:
		return "", false
	}
}

func childPath(parent, name string) string {
	return parent + "/" + name
}

func issue(path, message, constraint string, expected, actual any) apcerrors.ValidationIssue {
	if path == "" {
		path = "/"
	}
	return apcerrors.ValidationIssue{Path: path, Message: message, Constraint: constraint, Expected: expected, Actual: actual}
}
