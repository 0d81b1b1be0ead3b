package scans

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind enum untuk ParamValue
type ValueKind int

const (
	KindAbsent ValueKind = iota
	KindString
	KindBool
	KindList
)

// ParamValue is the value of a single tool parameter. The intake JSON allows a
// string, a bool, or a list of strings; numbers are tolerated and stringified.
// A tagged union keeps the stringification rules in one place instead of
// scattering type switches across every builder.
type ParamValue struct {
	kind ValueKind
	str  string
	b    bool
	list []string
}

func StringValue(s string) ParamValue { return ParamValue{kind: KindString, str: s} }
func BoolValue(v bool) ParamValue     { return ParamValue{kind: KindBool, b: v} }
func ListValue(items ...string) ParamValue {
	return ParamValue{kind: KindList, list: append([]string(nil), items...)}
}

func (v ParamValue) Kind() ValueKind { return v.kind }
func (v ParamValue) IsAbsent() bool  { return v.kind == KindAbsent }

// Truthy reports whether a no-value flag should be emitted.
func (v ParamValue) Truthy() bool {
	switch v.kind {
	case KindString:
		return v.str != ""
	case KindBool:
		return v.b
	case KindList:
		return len(v.list) > 0
	default:
		return false
	}
}

// String renders the value as a single CLI argument. Lists are comma-joined;
// builders that need repeated flags use List instead.
func (v ParamValue) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		return strings.Join(v.list, ",")
	default:
		return ""
	}
}

// List returns the value as items: a list as-is, a scalar as a one-element
// slice, absent as nil.
func (v ParamValue) List() []string {
	switch v.kind {
	case KindList:
		return append([]string(nil), v.list...)
	case KindString:
		if v.str == "" {
			return nil
		}
		return []string{v.str}
	case KindBool:
		return []string{strconv.FormatBool(v.b)}
	default:
		return nil
	}
}

// AsString returns the raw string and whether the value is a string.
func (v ParamValue) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v ParamValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		return json.Marshal(v.list)
	default:
		return []byte("null"), nil
	}
}

func (v *ParamValue) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*v = ParamValue{}
		return nil
	}
	switch s[0] {
	case '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*v = StringValue(str)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		items := make([]string, 0, len(raw))
		for _, r := range raw {
			var item ParamValue
			if err := json.Unmarshal(r, &item); err != nil {
				return err
			}
			items = append(items, item.String())
		}
		*v = ParamValue{kind: KindList, list: items}
		return nil
	default:
		// number: keep the literal as written
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported parameter value: %s", s)
		}
		*v = StringValue(n.String())
		return nil
	}
}
