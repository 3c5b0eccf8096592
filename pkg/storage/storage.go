// Package storage defines the StorageBackend contract the core is
// written against (spec.md §6): a relational backend for mid-term
// memory and a vector backend for long-term memory. Concrete backends
// live in the relational/ and vector/ subpackages.
package storage

import (
	"context"
	"time"
)

// TypedValue is a tagged value carried in relational operations, so
// the backend never has to guess a driver-specific Go type mapping.
type TypedValue struct {
	Kind  string // "string" | "int" | "double" | "bool" | "bytes" | "timestamp" | "null"
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Bytes []byte
	Time  time.Time
}

func StringValue(s string) TypedValue    { return TypedValue{Kind: "string", Str: s} }
func IntValue(i int64) TypedValue        { return TypedValue{Kind: "int", Int: i} }
func FloatValue(f float64) TypedValue    { return TypedValue{Kind: "double", Float: f} }
func BoolValue(b bool) TypedValue        { return TypedValue{Kind: "bool", Bool: b} }
func BytesValue(b []byte) TypedValue     { return TypedValue{Kind: "bytes", Bytes: b} }
func TimeValue(t time.Time) TypedValue   { return TypedValue{Kind: "timestamp", Time: t} }
func NullValue() TypedValue              { return TypedValue{Kind: "null"} }

// Where selects rows either via simple equality conditions or a raw
// clause with positional '?' parameters. When RawClause is non-empty
// the simple Conditions map is ignored.
type Where struct {
	Conditions map[string]TypedValue
	RawClause  string
	RawParams  []TypedValue
}

// InsertOp appends one row.
type InsertOp struct {
	Table string
	Row   map[string]TypedValue
}

// UpdateOp updates rows matching Where, either via Set (simple
// equality assignments) or RawSet (a raw 'col = ?, ...' fragment with
// its own '?' parameters, e.g. `access_count = access_count + 1`).
type UpdateOp struct {
	Table    string
	Set      map[string]TypedValue
	RawSet   string
	RawSetParams []TypedValue
	Where    Where
}

// DeleteOp removes rows matching Where.
type DeleteOp struct {
	Table string
	Where Where
}

// SelectOp reads rows matching Where, with optional projection,
// ordering, and paging.
type SelectOp struct {
	Table    string
	Fields   []string
	Where    Where
	OrderBy  string
	Limit    int
	Offset   int
}

// Op is a sum type over the four relational operations.
type Op struct {
	Insert *InsertOp
	Update *UpdateOp
	Delete *DeleteOp
	Select *SelectOp
}

// Row is one result row from a Select, keyed by column name.
type Row map[string]TypedValue

// OpResult is the outcome of one Op within an Execute batch.
type OpResult struct {
	Rows         []Row
	RowsAffected int64
	LastInsertID string
	Err          error
}

// Relational is the relational half of StorageBackend.
type Relational interface {
	Execute(ctx context.Context, ops []Op, useTransaction bool) ([]OpResult, error)
}

// VectorOp is a sum type over the vector operations.
type VectorInsertOp struct {
	Collection string
	ID         string
	Vector     []float32
	Metadata   map[string]any
}

type VectorSearchOp struct {
	Collection string
	Query      []float32
	TopK       int
	Filter     map[string]any
	Partition  string
}

type VectorDeleteOp struct {
	Collection string
	ID         string
}

type VectorOp struct {
	Insert *VectorInsertOp
	Upsert *VectorInsertOp
	Search *VectorSearchOp
	Delete *VectorDeleteOp
}

// VectorSearchResult is one ANN hit.
type VectorSearchResult struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// VectorOpResult is the outcome of one VectorOp.
type VectorOpResult struct {
	SearchResults []VectorSearchResult
	Err           error
}

// Vector is the vector half of StorageBackend.
type Vector interface {
	ExecuteVector(ctx context.Context, ops []VectorOp) ([]VectorOpResult, error)
}

// Backend is the full StorageBackend the core is written against.
type Backend interface {
	Relational
	Vector
}

// combined pairs a Relational and a Vector implementation (typically
// from separate packages, e.g. relational.Backend + vector.ChromemBackend)
// into one Backend, since the two halves are configured independently.
type combined struct {
	Relational
	Vector
}

// Combine builds a Backend from its two independently-configured
// halves.
func Combine(rel Relational, vec Vector) Backend {
	return combined{Relational: rel, Vector: vec}
}
