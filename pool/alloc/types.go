package alloc

import (
	"encoding/binary"
	"fmt"
)

// RefSize is the encoded size of an ObjectRef inside persistent structures.
const RefSize = 16

// ObjectRef is a persistent object identifier: the pool that owns the
// object and the offset of its payload inside that pool. Unlike a pointer
// it stays valid across process restarts and remappings.
//
// The zero value is the null reference.
type ObjectRef struct {
	PoolID uint64
	Off    uint64
}

// Null is the null reference.
var Null ObjectRef

// IsNull reports whether r refers to nothing.
func (r ObjectRef) IsNull() bool { return r.Off == 0 }

// Equal reports whether r and o name the same object.
func (r ObjectRef) Equal(o ObjectRef) bool {
	if r.IsNull() || o.IsNull() {
		return r.IsNull() && o.IsNull()
	}
	return r == o
}

func (r ObjectRef) String() string {
	if r.IsNull() {
		return "ref(null)"
	}
	return fmt.Sprintf("ref(%016x:%#x)", r.PoolID, r.Off)
}

// Encode writes r into b[:RefSize].
func (r ObjectRef) Encode(b []byte) {
	_ = b[RefSize-1]
	binary.LittleEndian.PutUint64(b[0:8], r.PoolID)
	binary.LittleEndian.PutUint64(b[8:16], r.Off)
}

// DecodeRef reads a reference written by Encode.
func DecodeRef(b []byte) ObjectRef {
	_ = b[RefSize-1]
	return ObjectRef{
		PoolID: binary.LittleEndian.Uint64(b[0:8]),
		Off:    binary.LittleEndian.Uint64(b[8:16]),
	}
}

// TypeNum is the caller-chosen type tag stored with every allocation.
type TypeNum uint32

// TypeRoot tags the pool's root allocation. Callers should not use it.
const TypeRoot TypeNum = 0xFFFFFFFF

// InitFunc initializes a freshly allocated, zeroed payload before the
// allocation becomes visible. Returning an error releases the slot.
type InitFunc func(payload []byte, arg any) error
