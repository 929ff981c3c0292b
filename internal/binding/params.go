// Package binding holds what the KVP and REST request decoders share.
package binding

import (
	"net/url"
	"sort"
	"strings"

	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
	"github.com/mohammed-shakir/sos-core/internal/filter"
)

// Params holds usable parameter values keyed by lower-case name. Sent also
// records parameters that were rejected while normalizing.
type Params struct {
	Values map[string]string
	Sent   map[string]bool
	// Locator maps a lower-case name to the spelling used in exceptions.
	Locator func(key string) string
}

func (p Params) Name(key string) string {
	if p.Locator == nil {
		return key
	}
	return p.Locator(key)
}

func (p Params) Get(key string) (string, bool) {
	v, ok := p.Values[key]
	return v, ok
}

// Require reports a MissingParameterValue for key unless it was sent; a
// sent but rejected parameter already carries its own exception.
func (p Params) Require(key string, errs *owserr.Composite) {
	if !p.Sent[key] {
		errs.Add(owserr.MissingParameterValueError(p.Name(key)))
	}
}

// List splits a comma separated value.
func (p Params) List(key string) []string { return filter.SplitTokens(p.Values[key]) }

// RejectUnknown reports every sent parameter outside known.
func (p Params) RejectUnknown(known []string, errs *owserr.Composite) {
	ok := make(map[string]bool, len(known))
	for _, k := range known {
		ok[k] = true
	}
	var unknown []string
	for k := range p.Sent {
		if !ok[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		errs.Add(owserr.ParameterNotSupportedError(k))
	}
}

// Normalize folds parameter names to lower case. Repeated and empty
// parameters are reported in errs and dropped.
func Normalize(values url.Values, locator func(string) string, errs *owserr.Composite) Params {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := Params{Values: map[string]string{}, Sent: map[string]bool{}, Locator: locator}
	count := map[string]int{}
	var order []string
	for _, k := range keys {
		lk := strings.ToLower(strings.TrimSpace(k))
		if !p.Sent[lk] {
			order = append(order, lk)
		}
		p.Sent[lk] = true
		count[lk] += len(values[k])
		for _, v := range values[k] {
			p.Values[lk] = strings.TrimSpace(v)
		}
	}
	for _, lk := range order {
		switch {
		case count[lk] > 1:
			errs.Add(owserr.InvalidParameterValueError(p.Name(lk), p.Values[lk],
				"The parameter '%s' is given more than once", p.Name(lk)))
			delete(p.Values, lk)
		case p.Values[lk] == "":
			errs.Add(owserr.MissingParameterValueError(p.Name(lk)))
			delete(p.Values, lk)
		}
	}
	return p
}

// TemporalFilter builds the filter in key, if present.
func TemporalFilter(b filter.Builder, p Params, key string, errs *owserr.Composite) []filter.TemporalFilter {
	v, ok := p.Get(key)
	if !ok {
		return nil
	}
	tf, err := b.ParseTemporalFilterTokens(p.Name(key), filter.SplitTokens(v))
	if err != nil {
		errs.Add(err)
		return nil
	}
	return []filter.TemporalFilter{tf}
}

// SpatialFilter builds the bbox filter in key, if present.
func SpatialFilter(b filter.Builder, p Params, key string, errs *owserr.Composite) *filter.SpatialFilter {
	v, ok := p.Get(key)
	if !ok {
		return nil
	}
	sf, err := b.ParseSpatialFilter(p.Name(key), filter.SplitTokens(v))
	if err != nil {
		errs.Add(err)
		return nil
	}
	return &sf
}
