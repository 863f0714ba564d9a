package stats

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Aggregation says how the server combines the values of a stat across sources.
type Aggregation string

const (
	AggregationNone            Aggregation = "none"
	AggregationSum             Aggregation = "sum"
	AggregationMin             Aggregation = "min"
	AggregationMax             Aggregation = "max"
	AggregationAverage         Aggregation = "average"
	AggregationRate            Aggregation = "rate"
	AggregationMaxRate         Aggregation = "maxrate"
	AggregationMinRate         Aggregation = "minrate"
	AggregationPositiveRate    Aggregation = "positiverate"
	AggregationPositiveMaxRate Aggregation = "positivemaxrate"
	AggregationPositiveMinRate Aggregation = "positiveminrate"
)

// Aggregations returns every aggregation the server supports.
func Aggregations() []Aggregation {
	return []Aggregation{
		AggregationNone, AggregationSum, AggregationMin, AggregationMax, AggregationAverage,
		AggregationRate, AggregationMaxRate, AggregationMinRate,
		AggregationPositiveRate, AggregationPositiveMaxRate, AggregationPositiveMinRate,
	}
}

func (a Aggregation) Valid() bool {
	for _, s := range Aggregations() {
		if a == s {
			return true
		}
	}
	return false
}

// ValidationError reports a malformed query, detected before anything is sent.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Stat is one column of a query. Its definition has the form "group:name".
type Stat struct {
	Group       string      `json:"group"`
	Name        string      `json:"name"`
	Aggregation Aggregation `json:"aggregationType"`
}

// NewStat parses a "group:name" definition. A definition without a colon is used as both
// group and name.
func NewStat(definition string, agg Aggregation) (Stat, error) {
	if strings.TrimSpace(definition) == "" {
		return Stat{}, invalid("the 'definition' parameter is required")
	}
	if agg == "" {
		agg = AggregationNone
	}
	if !agg.Valid() {
		return Stat{}, invalid("the specified aggregation type '%s' is not supported", agg)
	}
	parts := strings.Split(definition, ":")
	return Stat{Group: parts[0], Name: parts[len(parts)-1], Aggregation: agg}, nil
}

// MustStat is like NewStat but panics on error. It is meant for fixed definitions.
func MustStat(definition string, agg Aggregation) Stat {
	s, err := NewStat(definition, agg)
	if err != nil {
		panic(err)
	}
	return s
}

// Definition is the name snapshot columns are addressed by.
func (s Stat) Definition() string { return s.Name }

func (s Stat) Equals(right interface{}) (*Filter, error) {
	return NewFilter(s.Definition(), "=", right, FilterArithmetic)
}

func (s Stat) NotEqual(right interface{}) (*Filter, error) {
	return NewFilter(s.Definition(), "!=", right, FilterArithmetic)
}

func (s Stat) LessThan(right interface{}) (*Filter, error) {
	return NewFilter(s.Definition(), "<", right, FilterArithmetic)
}

func (s Stat) LessOrEquals(right interface{}) (*Filter, error) {
	return NewFilter(s.Definition(), "<=", right, FilterArithmetic)
}

func (s Stat) GreaterThan(right interface{}) (*Filter, error) {
	return NewFilter(s.Definition(), ">", right, FilterArithmetic)
}

func (s Stat) GreaterOrEquals(right interface{}) (*Filter, error) {
	return NewFilter(s.Definition(), ">=", right, FilterArithmetic)
}

const (
	FilterArithmetic = "arithmetic"
	FilterBoolean    = "boolean"
)

// Filter is a condition rows must meet to be returned. LeftItem is a stat definition or a
// nested *Filter; RightItem is a number, a non-empty string or a nested *Filter.
type Filter struct {
	LeftItem  interface{} `json:"leftItem"`
	Operator  string      `json:"operator"`
	RightItem interface{} `json:"rightItem"`
	Type      string      `json:"type"`
}

func NewFilter(left interface{}, operator string, right interface{}, filterType string) (*Filter, error) {
	switch r := right.(type) {
	case string:
		if r == "" {
			return nil, invalid("the 'rightItem' parameter can only be a number or a non empty string")
		}
	case *Filter:
		if r == nil {
			return nil, invalid("the 'rightItem' parameter is required")
		}
	case int, int32, int64, uint, uint32, uint64, float32, float64, json.Number:
	default:
		return nil, invalid("the 'rightItem' parameter can only be a number or a non empty string, got %T", right)
	}
	return &Filter{LeftItem: left, Operator: operator, RightItem: right, Type: filterType}, nil
}

func (f *Filter) And(right *Filter) *Filter {
	return &Filter{LeftItem: f, Operator: "and", RightItem: right, Type: FilterBoolean}
}

func (f *Filter) Or(right *Filter) *Filter {
	return &Filter{LeftItem: f, Operator: "or", RightItem: right, Type: FilterBoolean}
}

func (f *Filter) clone() *Filter {
	if f == nil {
		return nil
	}
	cp := *f
	if l, ok := f.LeftItem.(*Filter); ok {
		cp.LeftItem = l.clone()
	}
	if r, ok := f.RightItem.(*Filter); ok {
		cp.RightItem = r.clone()
	}
	return &cp
}

// Direction is the sort order of an OrderBy. The server expects the strings "true" and
// "false".
type Direction string

const (
	Ascending  Direction = "true"
	Descending Direction = "false"
)

type OrderBy struct {
	Definition  string      `json:"definition"`
	Ascending   Direction   `json:"ascending"`
	Aggregation Aggregation `json:"aggregationType"`
}

// OrderByStat orders rows by a stat of the query, using its aggregation.
func OrderByStat(s Stat, dir Direction) (OrderBy, error) {
	if dir != Ascending && dir != Descending {
		return OrderBy{}, invalid("the specified direction for ordering '%s' is not supported", dir)
	}
	return OrderBy{Definition: s.Definition(), Ascending: dir, Aggregation: s.Aggregation}, nil
}

// OrderByDefinition orders rows by a "group:name" definition with no aggregation.
func OrderByDefinition(definition string, dir Direction) (OrderBy, error) {
	s, err := NewStat(definition, AggregationNone)
	if err != nil {
		return OrderBy{}, err
	}
	return OrderByStat(s, dir)
}

type Group struct {
	Name    string    `json:"name"`
	Stats   []Stat    `json:"stats"`
	OrderBy []OrderBy `json:"orderBy"`
	Filter  *Filter   `json:"filter"`
}

// Query is a statistics query as registered with the server.
type Query struct {
	ID        string  `json:"id"`
	Groups    []Group `json:"groups"`
	SyncGroup string  `json:"syncGroup"`
	Limit     int     `json:"limit"`
	CacheSize int     `json:"cacheSize"`
}

type QueryOption func(*Query)

func WithOrderBy(orderBy ...OrderBy) QueryOption {
	return func(q *Query) { q.Groups[0].OrderBy = append(q.Groups[0].OrderBy, orderBy...) }
}

func WithFilter(f *Filter) QueryOption {
	return func(q *Query) { q.Groups[0].Filter = f }
}

// WithSyncGroup sets the server-side group that aligns delivery of several queries. The
// default is "all".
func WithSyncGroup(name string) QueryOption {
	return func(q *Query) { q.SyncGroup = name }
}

// WithLimit caps the rows per snapshot. Zero, the default, returns every row.
func WithLimit(n int) QueryOption {
	return func(q *Query) { q.Limit = n }
}

// WithCacheSize sets how many snapshots the server keeps for the query. The default is 1.
func WithCacheSize(n int) QueryOption {
	return func(q *Query) { q.CacheSize = n }
}

// NewQueryID returns a fresh query identifier.
func NewQueryID() string {
	return "apiQuery_" + uuid.NewString()
}

// NewQuery builds a query for stats, all of which belong to the group of the first one.
func NewQuery(stats []Stat, opts ...QueryOption) (*Query, error) {
	if len(stats) == 0 {
		return nil, invalid("the 'stats' parameter requires at least one stat")
	}
	for i, s := range stats {
		if s.Name == "" || !s.Aggregation.Valid() {
			return nil, invalid("the specified stat list has an invalid stat at index %d: %+v", i, s)
		}
	}
	q := &Query{
		ID: NewQueryID(),
		Groups: []Group{{
			Name:    stats[0].Group,
			Stats:   append([]Stat(nil), stats...),
			OrderBy: []OrderBy{},
		}},
		SyncGroup: "all",
		CacheSize: 1,
	}
	for _, o := range opts {
		o(q)
	}
	if q.SyncGroup == "" {
		return nil, invalid("the 'syncGroup' parameter is required")
	}
	if q.Limit < 0 {
		return nil, invalid("the 'limit' parameter must not be negative")
	}
	if q.CacheSize < 1 {
		return nil, invalid("the 'cacheSize' parameter must be at least 1")
	}
	return q, nil
}

// Stats returns the query's columns in order.
func (q *Query) Stats() []Stat {
	if len(q.Groups) == 0 {
		return nil
	}
	return q.Groups[0].Stats
}

func (q *Query) GroupName() string {
	if len(q.Groups) == 0 {
		return ""
	}
	return q.Groups[0].Name
}

// Copy returns a deep copy with a new ID, so the same query can be registered again.
func (q *Query) Copy() *Query {
	cp := *q
	cp.ID = NewQueryID()
	cp.Groups = make([]Group, len(q.Groups))
	for i, g := range q.Groups {
		cp.Groups[i] = Group{
			Name:    g.Name,
			Stats:   append([]Stat(nil), g.Stats...),
			OrderBy: append([]OrderBy{}, g.OrderBy...),
			Filter:  g.Filter.clone(),
		}
	}
	return &cp
}
