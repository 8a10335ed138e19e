package flows

import (
	"fmt"
	"strings"
)

// ActionBuilder accumulates an action string the way the teacher's ops
// layer accumulates OVSDB mutations: append freely, then String() returns
// the text with trailing spaces and commas trimmed, so a final "; " ends as
// ";". String() does not close braces left open by Raw text.
type ActionBuilder struct {
	b strings.Builder
}

func NewActionBuilder() *ActionBuilder { return &ActionBuilder{} }

// Add appends one statement, ensuring exactly one trailing "; ".
func (a *ActionBuilder) Add(format string, args ...interface{}) *ActionBuilder {
	s := fmt.Sprintf(format, args...)
	s = strings.TrimRight(s, "; ")
	a.b.WriteString(s)
	a.b.WriteString("; ")
	return a
}

// Raw appends text verbatim, with no separator bookkeeping. Used for
// caller-assembled clone{...}/icmp4{...} blocks that already end in ';'.
func (a *ActionBuilder) Raw(s string) *ActionBuilder {
	a.b.WriteString(s)
	return a
}

func (a *ActionBuilder) String() string {
	return strings.TrimRight(a.b.String(), ", ")
}

// MatchBuilder accumulates a match expression, joining terms with " && ".
type MatchBuilder struct {
	terms []string
}

func NewMatchBuilder() *MatchBuilder { return &MatchBuilder{} }

func (m *MatchBuilder) Add(format string, args ...interface{}) *MatchBuilder {
	s := fmt.Sprintf(format, args...)
	if s != "" {
		m.terms = append(m.terms, s)
	}
	return m
}

// AddIf appends the term only when cond is true; kept as a helper since
// stage generators conditionally add many match fragments.
func (m *MatchBuilder) AddIf(cond bool, format string, args ...interface{}) *MatchBuilder {
	if cond {
		m.Add(format, args...)
	}
	return m
}

func (m *MatchBuilder) String() string {
	return strings.Join(m.terms, " && ")
}

// JSONEscapeName mirrors the teacher's convention of pre-computing a
// JSON-escaped port name for use inside match strings (spec §3 "Port":
// "JSON-escaped name for use in match strings"). Only '"' and '\\' need
// escaping for the identifiers this engine deals with (port/LR names).
func JSONEscapeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == '"' || r == '\\' {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsChassisResident builds the is_chassis_resident(<name>) predicate with
// the name properly quoted, since it is never safe to interpolate a raw
// identifier into the DSL (spec §9).
func IsChassisResident(name string) string {
	return fmt.Sprintf(`is_chassis_resident("%s")`, JSONEscapeName(name))
}
