package phrase

import (
	"regexp"
	"strings"
)

// Field is one placeholder extractor of a compiled template.
type Field struct {
	Key  string
	rule *regexp.Regexp
}

// Pattern is a compiled template.
//
// Fields appear in the order their placeholders occur in the template, read
// left to right. The same key may appear more than once.
type Pattern struct {
	Template string
	Fields   []Field

	match *regexp.Regexp
}

// Matches reports whether the normalized phrase is fully described by the pattern.
func (p *Pattern) Matches(phrase string) bool {
	return p.match.MatchString(phrase)
}

// Extract captures one value per field. Each field searches the remaining
// text and removes the first span it matched, so repeated fragments never
// capture the same text twice.
func (p *Pattern) Extract(phrase string) ([]string, error) {
	rest := phrase
	values := make([]string, 0, len(p.Fields))
	for _, f := range p.Fields {
		loc := f.rule.FindStringIndex(rest)
		if loc == nil {
			return nil, malformed(f.Key, rest, "placeholder not found")
		}
		values = append(values, rest[loc[0]:loc[1]])
		rest = rest[:loc[0]] + rest[loc[1]:]
	}
	return values, nil
}

func (p *Pattern) String() string { return p.Template }

// Compiler turns templates into Patterns using an injected Vocabulary.
// A Compiler is not safe for concurrent use; the Patterns it returns are.
type Compiler struct {
	vocab Vocabulary
	cache map[string]*regexp.Regexp
}

func NewCompiler(vocab Vocabulary) *Compiler {
	return &Compiler{vocab: vocab, cache: map[string]*regexp.Regexp{}}
}

// Compile parses template. Placeholders are brace-delimited keys; all other
// text is matched literally, case-insensitively, against the whole phrase.
func (c *Compiler) Compile(template string) (*Pattern, error) {
	var (
		rule   strings.Builder
		fields []Field
		rest   = template
	)
	rule.WriteString(`(?i)^`)
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			rule.WriteString(regexp.QuoteMeta(rest))
			break
		}
		rule.WriteString(regexp.QuoteMeta(rest[:open]))
		rest = rest[open+1:]

		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return nil, &UnknownPlaceholderError{Template: template, Key: rest}
		}
		key := rest[:end]
		rest = rest[end+1:]

		frag, ok := c.vocab.Lookup(key)
		if !ok {
			return nil, &UnknownPlaceholderError{Template: template, Key: key}
		}
		re, err := c.fieldRule(key, frag)
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Key: key, rule: re})
		rule.WriteString(`(?:`)
		rule.WriteString(frag)
		rule.WriteString(`)`)
	}
	rule.WriteString(`$`)

	match, err := regexp.Compile(rule.String())
	if err != nil {
		return nil, malformed("template", template, err.Error())
	}
	return &Pattern{Template: template, Fields: fields, match: match}, nil
}

// MustCompile is like Compile but panics on error. Use it for templates known
// at startup.
func (c *Compiler) MustCompile(template string) *Pattern {
	p, err := c.Compile(template)
	if err != nil {
		panic(err)
	}
	return p
}

func (c *Compiler) fieldRule(key, frag string) (*regexp.Regexp, error) {
	if re, ok := c.cache[key]; ok {
		return re, nil
	}
	re, err := regexp.Compile(`(?i)` + frag)
	if err != nil {
		return nil, malformed("vocabulary", key, err.Error())
	}
	c.cache[key] = re
	return re, nil
}
