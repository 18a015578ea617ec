package obj

import (
	"github.com/joshuapare/pmemkit/pool"
	"github.com/joshuapare/pmemkit/pool/action"
	"github.com/joshuapare/pmemkit/pool/alloc"
)

// ObjectRef is a persistent object identifier.
type ObjectRef = alloc.ObjectRef

// TypeNum is a caller-chosen type tag.
type TypeNum = alloc.TypeNum

// InitFunc initializes a new allocation before it becomes visible.
type InitFunc = alloc.InitFunc

// Batch stages actions that are published atomically.
type Batch = action.Batch

// ObjectIterator walks the objects of one type tag.
type ObjectIterator = alloc.ObjectIterator

// FlushMode selects the OS barrier issued by each drain.
type FlushMode = pool.FlushMode

const (
	FlushAuto     = pool.FlushAuto
	FlushDataOnly = pool.FlushDataOnly
	FlushFull     = pool.FlushFull
)

// TypeRoot tags the root object.
const TypeRoot = alloc.TypeRoot

const (
	// MinPoolSize is the smallest pool Create accepts.
	MinPoolSize = pool.MinPoolSize
	// MaxPoolSize is the largest pool Create accepts.
	MaxPoolSize = pool.MaxPoolSize
)

// Null is the null reference.
var Null = alloc.Null

// DecodeRef reads a reference stored with ObjectRef.Encode.
func DecodeRef(b []byte) ObjectRef { return alloc.DecodeRef(b) }

// RefSize is the encoded size of an ObjectRef.
const RefSize = alloc.RefSize
