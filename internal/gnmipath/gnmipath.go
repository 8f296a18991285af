// Package gnmipath converts between human xpath notation and gNMI proto
// paths, and provides the prefix matching used for plugin dispatch.
package gnmipath

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	gpb "github.com/openconfig/gnmi/proto/gnmi"
)

// ErrEmptyPath is returned for a blank or root-only xpath.
var ErrEmptyPath = errors.New("gnmipath: empty xpath")

// Elem is one path element with optional list keys, e.g.
// interface[name=eth0].
type Elem struct {
	Name string
	Keys map[string]string
}

// Path is a parsed schema path.
type Path []Elem

// Parse splits an xpath such as
// /interfaces/interface[name=eth0]/state/counters into elements.
// Multiple keys per element ([a=1][b=2]) are supported. Slashes inside
// key values are honored.
func Parse(xpath string) (Path, error) {
	trimmed := strings.Trim(strings.TrimSpace(xpath), "/")
	if trimmed == "" {
		return nil, ErrEmptyPath
	}

	var path Path
	var cur strings.Builder
	depth := 0
	flush := func() error {
		if cur.Len() == 0 {
			return fmt.Errorf("gnmipath: empty element in %q", xpath)
		}
		elem, err := parseElem(cur.String())
		if err != nil {
			return err
		}
		path = append(path, elem)
		cur.Reset()
		return nil
	}

	for _, r := range trimmed {
		switch {
		case r == '[':
			depth++
			cur.WriteRune(r)
		case r == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("gnmipath: unbalanced brackets in %q", xpath)
			}
			cur.WriteRune(r)
		case r == '/' && depth == 0:
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			cur.WriteRune(r)
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("gnmipath: unbalanced brackets in %q", xpath)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return path, nil
}

func parseElem(s string) (Elem, error) {
	open := strings.IndexByte(s, '[')
	if open < 0 {
		return Elem{Name: s}, nil
	}
	name := s[:open]
	if name == "" {
		return Elem{}, fmt.Errorf("gnmipath: element %q has no name", s)
	}
	keys := make(map[string]string)
	rest := s[open:]
	for rest != "" {
		if rest[0] != '[' {
			return Elem{}, fmt.Errorf("gnmipath: malformed keys in %q", s)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Elem{}, fmt.Errorf("gnmipath: malformed keys in %q", s)
		}
		pair := rest[1:end]
		eq := strings.IndexByte(pair, '=')
		if eq <= 0 {
			return Elem{}, fmt.Errorf("gnmipath: key %q is not key=value", pair)
		}
		keys[pair[:eq]] = pair[eq+1:]
		rest = rest[end+1:]
	}
	return Elem{Name: name, Keys: keys}, nil
}

// MustParse is Parse for compile-time constant paths inside plugins.
func MustParse(xpath string) Path {
	p, err := Parse(xpath)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the path back to xpath notation. Keys are emitted in
// sorted order so the output is stable for logging and map keys.
func (p Path) String() string {
	var b strings.Builder
	for _, e := range p {
		b.WriteByte('/')
		b.WriteString(e.Name)
		if len(e.Keys) > 0 {
			keys := make([]string, 0, len(e.Keys))
			for k := range e.Keys {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "[%s=%s]", k, e.Keys[k])
			}
		}
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// Names returns the element names without keys, used for leaf matching.
func (p Path) Names() []string {
	out := make([]string, len(p))
	for i, e := range p {
		out[i] = e.Name
	}
	return out
}

// Key looks up a list key by element index and key name. The second
// return is false when the element or key is absent.
func (p Path) Key(index int, name string) (string, bool) {
	if index < 0 || index >= len(p) {
		return "", false
	}
	v, ok := p[index].Keys[name]
	return v, ok
}

// Join concatenates a notification prefix with an update path.
func Join(prefix, suffix Path) Path {
	if len(prefix) == 0 {
		return suffix
	}
	out := make(Path, 0, len(prefix)+len(suffix))
	out = append(out, prefix...)
	out = append(out, suffix...)
	return out
}

// ToProto builds a gNMI proto Path with the given origin and target.
func (p Path) ToProto(origin, target string) *gpb.Path {
	elems := make([]*gpb.PathElem, len(p))
	for i, e := range p {
		elems[i] = &gpb.PathElem{Name: e.Name, Key: e.Keys}
	}
	return &gpb.Path{Elem: elems, Origin: origin, Target: target}
}

// FromProto converts a gNMI proto Path. A nil proto path yields an
// empty Path.
func FromProto(pp *gpb.Path) Path {
	if pp == nil {
		return nil
	}
	out := make(Path, 0, len(pp.Elem))
	for _, pe := range pp.Elem {
		e := Elem{Name: pe.Name}
		if len(pe.Key) > 0 {
			e.Keys = make(map[string]string, len(pe.Key))
			for k, v := range pe.Key {
				e.Keys[k] = v
			}
		}
		out = append(out, e)
	}
	return out
}
