package db

import (
	"go.mongodb.org/mongo-driver/bson"
)

// FilterBuilder helps build MongoDB filters fluently
type FilterBuilder struct {
	filter bson.M
}

// NewFilter creates a new FilterBuilder
func NewFilter() *FilterBuilder {
	return &FilterBuilder{filter: bson.M{}}
}

// Eq adds an equality condition
func (f *FilterBuilder) Eq(field string, value interface{}) *FilterBuilder {
	f.filter[field] = value
	return f
}

// Ne adds a not-equal condition
func (f *FilterBuilder) Ne(field string, value interface{}) *FilterBuilder {
	return f.op(field, "$ne", value)
}

// Lt adds a less-than condition
func (f *FilterBuilder) Lt(field string, value interface{}) *FilterBuilder {
	return f.op(field, "$lt", value)
}

// ElemMatch matches documents where at least one array element satisfies cond
func (f *FilterBuilder) ElemMatch(field string, cond bson.M) *FilterBuilder {
	f.filter[field] = bson.M{"$elemMatch": cond}
	return f
}

// op merges an operator into the field's existing condition, so Ne and Lt on
// one field produce a single operator map.
func (f *FilterBuilder) op(field, operator string, value interface{}) *FilterBuilder {
	if existing, ok := f.filter[field].(bson.M); ok {
		existing[operator] = value
		return f
	}
	f.filter[field] = bson.M{operator: value}
	return f
}

// Build returns the final bson.M filter
func (f *FilterBuilder) Build() bson.M {
	return f.filter
}
