package effects

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// metaLine matches "// @key value" header lines.
	metaLine = regexp.MustCompile(`^\s*//\s*@([A-Za-z]+)\b\s*(.*?)\s*$`)

	// validID restricts ids to lowercase words joined by '_' or '-'.
	validID = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]*$`)

	// entryPoint detects the transition function every body must define.
	entryPoint = regexp.MustCompile(`(?m)^\s*func\s+transition\s*\(`)
)

var (
	ErrMissingID       = errors.New("missing @id")
	ErrMissingName     = errors.New("missing @name")
	ErrMissingCategory = errors.New("missing @category")
	ErrMissingBody     = errors.New("missing transition function")
)

// ParseError describes why an effect source was rejected.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("effect %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads one effect source unit. The metadata block is the run of
// "// @key value" and blank lines at the top; the body is everything from the
// first other line onward. source names the unit in errors.
func Parse(source string, data []byte) (*Descriptor, error) {
	fail := func(err error) (*Descriptor, error) {
		return nil, &ParseError{Source: source, Err: err}
	}

	meta := make(map[string]string)
	var body strings.Builder
	inBody := false

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !inBody {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if m := metaLine.FindStringSubmatch(line); m != nil {
				key := strings.ToLower(m[1])
				if _, dup := meta[key]; dup {
					return fail(fmt.Errorf("duplicate @%s", key))
				}
				meta[key] = m[2]
				continue
			}
			inBody = true
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return fail(err)
	}

	id := meta["id"]
	if id == "" {
		return fail(ErrMissingID)
	}
	if !validID.MatchString(id) {
		return fail(fmt.Errorf("invalid @id %q", id))
	}
	name := meta["name"]
	if name == "" {
		return fail(ErrMissingName)
	}
	catToken, ok := meta["category"]
	if !ok || catToken == "" {
		return fail(ErrMissingCategory)
	}
	category, err := ParseCategory(catToken)
	if err != nil {
		return fail(err)
	}

	premium := false
	if v, ok := meta["premium"]; ok && v != "" {
		premium, err = strconv.ParseBool(v)
		if err != nil {
			return fail(fmt.Errorf("invalid @premium %q", v))
		}
	}

	text := strings.TrimRight(body.String(), "\n")
	if !entryPoint.MatchString(text) {
		return fail(ErrMissingBody)
	}

	return &Descriptor{
		ID:       id,
		Name:     name,
		Category: category,
		Premium:  premium,
		Body:     text + "\n",
		Source:   source,
	}, nil
}

// FormatHeader renders the metadata block for d. Parsing the result followed
// by d.Body yields the same id, name, category and premium flag.
func FormatHeader(d *Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// @id %s\n", d.ID)
	fmt.Fprintf(&b, "// @name %s\n", d.Name)
	fmt.Fprintf(&b, "// @category %s\n", d.Category)
	fmt.Fprintf(&b, "// @premium %t\n", d.Premium)
	return b.String()
}

// Format renders a complete source unit for d.
func Format(d *Descriptor) []byte {
	return []byte(FormatHeader(d) + "\n" + d.Body)
}
