package gnmipath

// Prefix is a schema path prefix a plugin subscribes to. Matching
// ignores list keys: a prefix names containers, a concrete path carries
// instance keys.
type Prefix struct {
	path Path
}

// NewPrefix parses an xpath into a dispatch prefix.
func NewPrefix(xpath string) (Prefix, error) {
	p, err := Parse(xpath)
	if err != nil {
		return Prefix{}, err
	}
	return Prefix{path: p}, nil
}

// MustPrefix is NewPrefix for compile-time constant prefixes.
func MustPrefix(xpath string) Prefix {
	p, err := NewPrefix(xpath)
	if err != nil {
		panic(err)
	}
	return p
}

// Path returns the underlying parsed path, used to build subscriptions.
func (p Prefix) Path() Path { return p.path }

func (p Prefix) String() string { return p.path.String() }

// Matches reports whether candidate falls under this prefix. The
// candidate must be at least as deep as the prefix and agree on every
// prefix element name.
func (p Prefix) Matches(candidate Path) bool {
	if len(candidate) < len(p.path) {
		return false
	}
	for i, e := range p.path {
		if candidate[i].Name != e.Name {
			return false
		}
	}
	return true
}

// MatchesExact reports whether candidate names exactly the prefix path,
// key differences aside.
func (p Prefix) MatchesExact(candidate Path) bool {
	return len(candidate) == len(p.path) && p.Matches(candidate)
}
