package nat

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseError - a rule resource contained a bad line. Parsing stops at the first one.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d %q: %s", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseFields(line string) (f [4]FeatureRealization, err error) {
	tokens := strings.Split(line, ",")
	if len(tokens) != len(f) {
		return f, fmt.Errorf("%w, got %d", ErrFieldCount, len(tokens))
	}
	for i, token := range tokens {
		f[i], err = ParseFeatureRealization(token)
		if err != nil {
			return f, err
		}
	}
	return f, nil
}

// ParseRule parses one declared situation: client-mapping,client-filtering,service-mapping,service-filtering.
// dont_care is allowed, unknown is not.
func ParseRule(line string) (Situation, error) {
	f, err := parseFields(line)
	if err != nil {
		return UnknownSituation, err
	}
	for _, v := range f {
		if v == Unknown {
			return UnknownSituation, ErrUnknownInRule
		}
	}
	return SituationFromFields(f), nil
}

// ParseSituation parses an observed situation in the same format. unknown is allowed, dont_care is not.
func ParseSituation(line string) (Situation, error) {
	f, err := parseFields(line)
	if err != nil {
		return UnknownSituation, err
	}
	for _, v := range f {
		if v == DontCare {
			return UnknownSituation, ErrWildcardInSituation
		}
	}
	return SituationFromFields(f), nil
}

// ParseRules reads a rule resource, one situation per line. Blank lines and anything after a '#' are ignored.
func ParseRules(r io.Reader) ([]Situation, error) {
	var rules []Situation
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(strings.SplitN(raw, "#", 2)[0])
		if line == "" {
			continue
		}
		rule, err := ParseRule(line)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Text: raw, Err: err}
		}
		rules = append(rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// ParseRuleLines parses rules that are already split, e.g. inline in a config file.
// Every entry must be a rule. Blank entries and comments are errors here, unlike in ParseRules.
func ParseRuleLines(lines []string) ([]Situation, error) {
	rules := make([]Situation, 0, len(lines))
	for i, line := range lines {
		rule, err := ParseRule(strings.TrimSpace(line))
		if err != nil {
			return nil, &ParseError{Line: i + 1, Text: line, Err: err}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
