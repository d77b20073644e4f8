package render

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Color is a hex RGB color such as "#2c5282".
type Color string

// RGB decodes the color. Invalid values decode to black.
func (c Color) RGB() (int, int, int) {
	s := strings.TrimPrefix(string(c), "#")
	if len(s) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}

func (c Color) valid() bool {
	s := strings.TrimPrefix(string(c), "#")
	if len(s) != 6 {
		return false
	}
	_, err := strconv.ParseUint(s, 16, 32)
	return err == nil
}

// Theme controls the look of rendered certificates.
type Theme struct {
	PageSize     string `yaml:"page_size"` // Letter or A4
	Font         string `yaml:"font"`      // a core PDF font family
	Organization string `yaml:"organization"`
	VerifyURL    string `yaml:"verify_url"`

	SignatureName  string `yaml:"signature_name"`
	SignatureTitle string `yaml:"signature_title"`

	Colors struct {
		Border    Color `yaml:"border"`
		Heading   Color `yaml:"heading"`
		Recipient Color `yaml:"recipient"`
		Body      Color `yaml:"body"`
		Muted     Color `yaml:"muted"`
	} `yaml:"colors"`

	MaxItems            int `yaml:"max_items"`
	MaxDescriptionLines int `yaml:"max_description_lines"`
}

func DefaultTheme() Theme {
	t := Theme{
		PageSize:            "Letter",
		Font:                "Helvetica",
		Organization:        "MicroLearn",
		MaxItems:            10,
		MaxDescriptionLines: 3,
	}
	t.Colors.Border = "#2c5282"
	t.Colors.Heading = "#1a1a1a"
	t.Colors.Recipient = "#2c5282"
	t.Colors.Body = "#4a4a4a"
	t.Colors.Muted = "#6a6a6a"
	return t
}

// LoadTheme reads a YAML theme file. Unset fields keep their defaults.
func LoadTheme(path string) (Theme, error) {
	t := DefaultTheme()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read theme %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("parse theme %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("theme %s: %w", path, err)
	}
	return t, nil
}

func (t Theme) Validate() error {
	var problems []string
	switch t.PageSize {
	case "Letter", "A4":
	default:
		problems = append(problems, fmt.Sprintf("page_size must be Letter or A4, got %q", t.PageSize))
	}
	switch strings.ToLower(t.Font) {
	case "helvetica", "arial", "times", "courier":
	default:
		problems = append(problems, fmt.Sprintf("unsupported font %q", t.Font))
	}
	for name, c := range map[string]Color{
		"border":    t.Colors.Border,
		"heading":   t.Colors.Heading,
		"recipient": t.Colors.Recipient,
		"body":      t.Colors.Body,
		"muted":     t.Colors.Muted,
	} {
		if !c.valid() {
			problems = append(problems, fmt.Sprintf("colors.%s: invalid color %q", name, c))
		}
	}
	if t.MaxItems < 0 || t.MaxDescriptionLines < 0 {
		problems = append(problems, "max_items and max_description_lines must not be negative")
	}
	if len(problems) > 0 {
		slices.Sort(problems)
		return fmt.Errorf("invalid theme: %s", strings.Join(problems, "; "))
	}
	return nil
}
