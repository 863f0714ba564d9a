package main

import (
	"fmt"
	"regexp"
	"strings"
)

// columnFilter selects which stat columns are printed.
type columnFilter struct {
	MustMatch    regexList
	MustNotMatch regexList
}

func (f columnFilter) IsDefined() bool {
	return f.MustMatch.IsDefined() || f.MustNotMatch.IsDefined()
}

func (f columnFilter) Match(column string) bool {
	return (!f.MustMatch.IsDefined() || f.MustMatch.AnyMatch(column)) &&
		!f.MustNotMatch.AnyMatch(column)
}

// Select returns the columns that pass the filter, in order.
func (f columnFilter) Select(columns []string) []string {
	var ret []string
	for _, c := range columns {
		if f.Match(c) {
			ret = append(ret, c)
		}
	}
	return ret
}

// regexList is a repeatable command-line flag holding regular expressions.
type regexList struct {
	patterns []*regexp.Regexp
}

func (r *regexList) String() string {
	var ss []string
	for _, p := range r.patterns {
		ss = append(ss, `"`+p.String()+`"`)
	}
	return strings.Join(ss, " or ")
}

// Set is called by the command line parser
func (r *regexList) Set(value string) error {
	rx, err := regexp.Compile(value)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	r.patterns = append(r.patterns, rx)
	return nil
}

func (r *regexList) Type() string { return "regex" }

func (r *regexList) IsDefined() bool {
	return len(r.patterns) != 0
}

func (r *regexList) AnyMatch(s string) bool {
	for _, p := range r.patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
