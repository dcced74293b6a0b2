package descriptor

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrEmpty = errors.New("descriptor: no function or property declared")
)

// SyntaxError points at the descriptor line that could not be parsed.
type SyntaxError struct {
	Line int
	Text string
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("descriptor: line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Check validates descriptor text without keeping the result.
func Check(text string) error {
	_, err := Parse(text)
	return err
}

// Parse reads descriptor text into an Interface.
func Parse(text string) (*Interface, error) {
	iface := &Interface{}
	names := make(map[string]struct{})
	hasTag := false

	for n, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fail := func(format string, args ...any) error {
			return &SyntaxError{Line: n + 1, Text: line, Msg: fmt.Sprintf(format, args...)}
		}

		keyword, rest := cut(line)
		switch keyword {
		case "func", "function":
			f, err := parseFunction(rest)
			if err != nil {
				return nil, fail("%s", err)
			}
			if _, dup := names[f.Name]; dup {
				return nil, fail("%s declared twice", f.Name)
			}
			names[f.Name] = struct{}{}
			iface.Functions = append(iface.Functions, f)

		case "property":
			p, err := parseProperty(rest)
			if err != nil {
				return nil, fail("%s", err)
			}
			if _, dup := names[p.Name]; dup {
				return nil, fail("%s declared twice", p.Name)
			}
			names[p.Name] = struct{}{}
			iface.Properties = append(iface.Properties, p)

		case "tag":
			if hasTag {
				return nil, fail("tag declared twice")
			}
			if rest == "" || strings.ContainsFunc(rest, unicode.IsSpace) {
				return nil, fail("tag must be a single word")
			}
			hasTag = true
			iface.Tag = rest

		default:
			return nil, fail("unknown keyword %q", keyword)
		}
	}

	if len(iface.Functions) == 0 && len(iface.Properties) == 0 {
		return nil, ErrEmpty
	}
	return iface, nil
}

// cut splits a line on its first run of whitespace.
func cut(line string) (string, string) {
	idx := strings.IndexFunc(line, unicode.IsSpace)
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx:])
}

func parseFunction(decl string) (Function, error) {
	open := strings.IndexByte(decl, '(')
	if open < 0 {
		return Function{}, errors.New("missing parameter list")
	}

	f := Function{Name: strings.TrimSpace(decl[:open])}
	if !isIdent(f.Name) {
		return Function{}, fmt.Errorf("invalid function name %q", f.Name)
	}

	params, rest, err := group(decl[open:])
	if err != nil {
		return Function{}, err
	}
	if f.Params, err = parseParams(params); err != nil {
		return Function{}, err
	}

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return f, nil
	}
	if rest[0] != '(' {
		return Function{}, fmt.Errorf("unexpected %q after parameters", rest)
	}
	returns, tail, err := group(rest)
	if err != nil {
		return Function{}, err
	}
	if strings.TrimSpace(tail) != "" {
		return Function{}, fmt.Errorf("unexpected %q after return values", strings.TrimSpace(tail))
	}
	if f.Returns, err = parseParams(returns); err != nil {
		return Function{}, err
	}
	return f, nil
}

// group consumes a parenthesised list starting at s[0] and returns its
// content and whatever follows the closing parenthesis.
func group(s string) (string, string, error) {
	depth := 0
	for i, r := range s {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				if r != ')' {
					return "", "", errors.New("unbalanced brackets")
				}
				return s[1:i], s[i+1:], nil
			}
			if depth < 0 {
				return "", "", errors.New("unbalanced brackets")
			}
		}
	}
	return "", "", errors.New("unterminated list")
}

func parseParams(list string) ([]Param, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}

	var (
		params []Param
		depth  int
		start  int
	)
	flush := func(end int) error {
		field := strings.TrimSpace(list[start:end])
		name, typ := cut(field)
		if !isIdent(name) {
			return fmt.Errorf("invalid parameter name %q", name)
		}
		if typ == "" {
			return fmt.Errorf("parameter %s has no type", name)
		}
		params = append(params, Param{Name: name, Type: strings.Join(strings.Fields(typ), " ")})
		return nil
	}

	for i, r := range list {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				if err := flush(i); err != nil {
					return nil, err
				}
				start = i + 1
			}
		}
	}
	if err := flush(len(list)); err != nil {
		return nil, err
	}
	return params, nil
}

func parseProperty(decl string) (Property, error) {
	name, typ, found := strings.Cut(decl, ":")
	if !found {
		return Property{}, errors.New("expected \"property Name: type\"")
	}
	p := Property{
		Name: strings.TrimSpace(name),
		Type: strings.Join(strings.Fields(typ), " "),
	}
	if !isIdent(p.Name) {
		return Property{}, fmt.Errorf("invalid property name %q", p.Name)
	}
	if p.Type == "" {
		return Property{}, fmt.Errorf("property %s has no type", p.Name)
	}
	return p, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
