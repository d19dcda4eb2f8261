// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package api

// ValueKind tags the active member of a Value.
type ValueKind int

const (
	ValueNil ValueKind = iota
	ValueBool
	ValueInt32
	ValueInt64
	ValueFloat32
	ValueFloat64
	ValueBytes      // opaque byte string, caller-owned, not freed by the core
	ValueOwnedBytes // byte string the core frees after the call completes
	ValueObject     // a deserialized OBJ/CMD parameter
	ValueArray
)

// Value is the typed parameter union the core pushes into scripting calls.
type Value struct {
	Kind       ValueKind
	Bool       bool
	Int32      int32
	Int64      int64
	Float32    float32
	Float64    float64
	Bytes      []byte
	Object     any
	Array      []Value
	FreeAfter  bool // Object: release after the call returns
}

func NewBoolValue(v bool) Value    { return Value{Kind: ValueBool, Bool: v} }
func NewInt32Value(v int32) Value  { return Value{Kind: ValueInt32, Int32: v} }
func NewInt64Value(v int64) Value  { return Value{Kind: ValueInt64, Int64: v} }
func NewFloat32Value(v float32) Value { return Value{Kind: ValueFloat32, Float32: v} }
func NewFloat64Value(v float64) Value { return Value{Kind: ValueFloat64, Float64: v} }

// NewBytesValue wraps caller-owned bytes; the core will not free them.
func NewBytesValue(b []byte) Value { return Value{Kind: ValueBytes, Bytes: b} }

// NewOwnedBytesValue wraps bytes the core should free after the call.
func NewOwnedBytesValue(b []byte) Value {
	return Value{Kind: ValueOwnedBytes, Bytes: b}
}

// NewObjectValue wraps a deserialized object, optionally marked free-after-call.
func NewObjectValue(obj any, freeAfter bool) Value {
	return Value{Kind: ValueObject, Object: obj, FreeAfter: freeAfter}
}
