package model

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigurationError is a fatal setup problem detected before any request of
// the affected case or file is sent.
type ConfigurationError struct {
	Case   string
	File   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Case != "" {
		b.WriteString(" in case ")
		b.WriteString(e.Case)
	}
	if e.File != "" {
		b.WriteString(" (")
		b.WriteString(e.File)
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// CaseIO binds one input source to its success and error output paths.
type CaseIO struct {
	InputPath string
	OutPath   string
	ErrPath   string
}

// CaseConfig describes one named case: positionally paired file lists and the
// request template every row of those files is sent with.
type CaseConfig struct {
	Name            string            `yaml:"-"`
	InputFiles      []string          `yaml:"input_files"`
	OutputFiles     []string          `yaml:"output_files"`
	ErrFiles        []string          `yaml:"err_files"`
	URL             string            `yaml:"url"`
	Headers         map[string]string `yaml:"headers"`
	BodyTemplate    map[string]any    `yaml:"body_template"`
	QueryColumn     string            `yaml:"query_column"`
	QueryField      string            `yaml:"query_field"`
	EchoColumns     []string          `yaml:"echo_columns"`
	RequiredColumns []string          `yaml:"required_columns"`
}

// PairIO zips the three file lists. Lists of unequal length are a
// configuration error.
func (c CaseConfig) PairIO() ([]CaseIO, error) {
	ins, outs, errs := len(c.InputFiles), len(c.OutputFiles), len(c.ErrFiles)
	if ins != outs || outs != errs {
		return nil, &ConfigurationError{
			Case:   c.Name,
			Reason: fmt.Sprintf("input/output/err file counts differ: %d != %d != %d", ins, outs, errs),
		}
	}
	pairs := make([]CaseIO, 0, ins)
	for i := range c.InputFiles {
		pairs = append(pairs, CaseIO{
			InputPath: c.InputFiles[i],
			OutPath:   c.OutputFiles[i],
			ErrPath:   c.ErrFiles[i],
		})
	}
	return pairs, nil
}

// Template returns the case's request template after checking that it can be
// encoded.
func (c CaseConfig) Template() (RequestTemplate, error) {
	if strings.TrimSpace(c.URL) == "" {
		return RequestTemplate{}, &ConfigurationError{Case: c.Name, Reason: "url is required"}
	}
	t := RequestTemplate{
		URL:        c.URL,
		Headers:    c.Headers,
		Body:       c.BodyTemplate,
		QueryField: c.QueryField,
	}
	if _, err := t.BuildBody(""); err != nil {
		return RequestTemplate{}, &ConfigurationError{Case: c.Name, Reason: err.Error()}
	}
	return t, nil
}

// Echo returns the columns copied into every output record.
func (c CaseConfig) Echo() []string {
	if len(c.EchoColumns) > 0 {
		return c.EchoColumns
	}
	return []string{c.QueryColumn}
}

// Required returns the columns an input file must carry: the explicit list, or
// the echoed columns plus the query column.
func (c CaseConfig) Required() []string {
	if len(c.RequiredColumns) > 0 {
		return c.RequiredColumns
	}
	req := slices.Clone(c.Echo())
	if !slices.Contains(req, c.QueryColumn) {
		req = append(req, c.QueryColumn)
	}
	return req
}

// CaseSet is the case registry handed to the runner. Names keep the order in
// which they appear in the case file.
type CaseSet struct {
	order []string
	cases map[string]CaseConfig
}

// LoadCaseFile reads and parses a YAML case file.
func LoadCaseFile(path string, defaults CaseDefaults) (*CaseSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read case file: %w", err)
	}
	return ParseCases(data, defaults)
}

// CaseDefaults fills fields a case leaves empty.
type CaseDefaults struct {
	QueryColumn string
	QueryField  string
}

// ParseCases decodes a case document of the form `cases: {name: {...}}`.
// Unknown keys are rejected.
func ParseCases(data []byte, defaults CaseDefaults) (*CaseSet, error) {
	var doc struct {
		Cases map[string]CaseConfig `yaml:"cases"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse cases: %w", err)
	}

	// A second pass over the node tree recovers declaration order.
	var ordered struct {
		Cases yaml.Node `yaml:"cases"`
	}
	if err := yaml.Unmarshal(data, &ordered); err != nil {
		return nil, fmt.Errorf("parse cases: %w", err)
	}

	set := &CaseSet{cases: make(map[string]CaseConfig, len(doc.Cases))}
	content := ordered.Cases.Content
	for i := 0; i+1 < len(content); i += 2 {
		name := content[i].Value
		c := doc.Cases[name]
		c.Name = name
		if c.QueryColumn == "" {
			c.QueryColumn = orDefault(defaults.QueryColumn, DefaultQueryColumn)
		}
		if c.QueryField == "" {
			c.QueryField = orDefault(defaults.QueryField, DefaultQueryField)
		}
		set.order = append(set.order, name)
		set.cases[name] = c
	}
	if len(set.order) == 0 {
		return nil, errors.New("parse cases: no cases defined")
	}
	return set, nil
}

// Names returns case names in declaration order.
func (s *CaseSet) Names() []string {
	return slices.Clone(s.order)
}

// Get returns the named case.
func (s *CaseSet) Get(name string) (CaseConfig, bool) {
	c, ok := s.cases[name]
	return c, ok
}

// Select resolves names to cases, in the order given. No names selects every
// case in declaration order.
func (s *CaseSet) Select(names ...string) ([]CaseConfig, error) {
	if len(names) == 0 {
		names = s.order
	}
	out := make([]CaseConfig, 0, len(names))
	for _, name := range names {
		c, ok := s.cases[name]
		if !ok {
			return nil, &ConfigurationError{Case: name, Reason: "unknown case"}
		}
		out = append(out, c)
	}
	return out, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
