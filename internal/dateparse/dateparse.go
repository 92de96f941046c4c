// Package dateparse turns user-entered transaction dates into schema.Date.
// It accepts YYYY-MM-DD as stored in snapshots and English phrases such as
// "today", "yesterday" or "last friday".
package dateparse

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/mschirtzinger/khata/internal/schema"
)

// ErrUnrecognized is returned when the text is neither a date nor a phrase
// the parser understands.
var ErrUnrecognized = errors.New("unrecognized date")

// Parser resolves phrases relative to a base time.
type Parser struct {
	w *when.Parser
}

// New returns a parser with the English and common rule sets.
func New() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w}
}

// Parse returns the calendar date text refers to, relative to base and in
// base's location. Empty text means base's date.
func (p *Parser) Parse(text string, base time.Time) (schema.Date, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return schema.DateOf(base), nil
	}
	if d, err := schema.ParseDate(text); err == nil {
		return d, nil
	}

	r, err := p.w.Parse(text, base)
	if err != nil {
		return schema.Date{}, fmt.Errorf("parse %q: %w", text, err)
	}
	if r == nil {
		return schema.Date{}, fmt.Errorf("%w: %q", ErrUnrecognized, text)
	}
	return schema.DateOf(r.Time.In(base.Location())), nil
}
