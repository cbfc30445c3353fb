// Package identity canonicalizes free-text test names flowing from the
// datastore and from HTML artifacts into comparable forms. Everything here is
// a pure function of its input: normalization never fails and never touches
// shared state, so callers can fan it out per record.
package identity

import "strings"

// Identity is the canonical form of a raw test name.
type Identity struct {
	// FullName is the cleaned class name joined with the method name,
	// e.g. "suites.dash.TestDashApis.testFreezeAccount".
	FullName string `json:"full_name"`
	// ClassName is everything before the final dot, as found in the input.
	ClassName string `json:"class_name,omitempty"`
	// MethodName is the final dot-separated segment.
	MethodName string `json:"method_name"`
	// CleanedClassName is ClassName with immediately-repeated segments
	// collapsed ("a.B.B" -> "a.B").
	CleanedClassName string `json:"cleaned_class_name,omitempty"`
}

// Normalize canonicalizes a raw test name. It is total: input that cannot be
// split into class and method degrades to a method-only identity that uses
// the entire trimmed string as the method name.
func Normalize(raw string) Identity {
	name := strings.TrimSpace(raw)
	if name == "" {
		return Identity{}
	}

	cleaned := CollapseSegments(name)
	parts := strings.Split(cleaned, ".")
	if len(parts) < 2 {
		return Identity{
			FullName:   cleaned,
			MethodName: cleaned,
		}
	}

	method := parts[len(parts)-1]
	class := strings.Join(parts[:len(parts)-1], ".")
	return Identity{
		FullName:         cleaned,
		ClassName:        class,
		MethodName:       method,
		CleanedClassName: class,
	}
}

// CollapseSegments removes immediately-repeated dot-separated segments in a
// single left-to-right pass. Test frameworks that prefix the class with its
// own package alias produce names like "a.b.Cls.Cls.method"; collapsing makes
// the two sources comparable.
//
//	"a.b.TestDash.TestDash.m" -> "a.b.TestDash.m"
//	"TestDash.TestDash"       -> "TestDash"
func CollapseSegments(name string) string {
	if !strings.Contains(name, ".") {
		return name
	}
	parts := strings.Split(name, ".")
	cleaned := make([]string, 0, len(parts))
	for i := 0; i < len(parts); i++ {
		cleaned = append(cleaned, parts[i])
		if i+1 < len(parts) && parts[i] == parts[i+1] {
			i++
		}
	}
	return strings.Join(cleaned, ".")
}

// LastTwo returns the final two dot-separated segments ("Class.method").
// Names with fewer than two segments are returned unchanged.
func LastTwo(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return name
	}
	return parts[len(parts)-2] + "." + parts[len(parts)-1]
}

// Method returns the final dot-separated segment of a name.
func Method(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
