package identity

import "testing"

func TestCollapseSegments(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"suites.dash.TestDashApis.TestDashApis.testMethod", "suites.dash.TestDashApis.testMethod"},
		{"suites.dash.TestDashApis.TestDashApis", "suites.dash.TestDashApis"},
		{"TestDashApis.TestDashApis", "TestDashApis"},
		{"a.a.a.m", "a.a.m"},
		{"no-dots-here", "no-dots-here"},
		{"plain.Class.method", "plain.Class.method"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CollapseSegments(tc.in); got != tc.want {
			t.Errorf("CollapseSegments(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	id := Normalize("suites.dash.TestDashApis.TestDashApis.testFreeze")
	if id.FullName != "suites.dash.TestDashApis.testFreeze" {
		t.Errorf("FullName = %q", id.FullName)
	}
	if id.ClassName != "suites.dash.TestDashApis" {
		t.Errorf("ClassName = %q", id.ClassName)
	}
	if id.MethodName != "testFreeze" {
		t.Errorf("MethodName = %q", id.MethodName)
	}
	if id.CleanedClassName != "suites.dash.TestDashApis" {
		t.Errorf("CleanedClassName = %q", id.CleanedClassName)
	}
}

func TestNormalize_MethodOnlyDegradation(t *testing.T) {
	id := Normalize("justonename")
	if id.MethodName != "justonename" {
		t.Errorf("MethodName = %q, want whole input", id.MethodName)
	}
	if id.ClassName != "" {
		t.Errorf("ClassName = %q, want empty", id.ClassName)
	}
	if id.FullName != "justonename" {
		t.Errorf("FullName = %q", id.FullName)
	}
}

func TestNormalize_Whitespace(t *testing.T) {
	id := Normalize("  Cls.method  ")
	if id.FullName != "Cls.method" {
		t.Errorf("FullName = %q, want trimmed", id.FullName)
	}
}

func TestNormalize_Empty(t *testing.T) {
	id := Normalize("")
	if id != (Identity{}) {
		t.Errorf("Normalize(\"\") = %+v, want zero value", id)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	raw := "a.b.Cls.Cls.testThing"
	if Normalize(raw) != Normalize(raw) {
		t.Error("Normalize is not deterministic")
	}
}

func TestLastTwo(t *testing.T) {
	if got := LastTwo("a.b.Cls.method"); got != "Cls.method" {
		t.Errorf("LastTwo = %q", got)
	}
	if got := LastTwo("single"); got != "single" {
		t.Errorf("LastTwo(single) = %q", got)
	}
}

func TestMethod(t *testing.T) {
	if got := Method("a.b.m"); got != "m" {
		t.Errorf("Method = %q", got)
	}
	if got := Method("m"); got != "m" {
		t.Errorf("Method = %q", got)
	}
}
