package model

// Core annotation values recognized by the clock-skew corrector and
// the dependency linker. Callers compare them against an annotation's
// Value field.
const (
	CoreClientSend    = "cs"
	CoreClientReceive = "cr"
	CoreServerReceive = "sr"
	CoreServerSend    = "ss"
)

// Binary-annotation keys used to carry endpoint identity rather than a
// scalar tag value.
const (
	KeyClientAddr = "ca"
	KeyServerAddr = "sa"
)

// AnnotationType is the wire type of a BinaryAnnotation's value.
type AnnotationType int8

const (
	TypeBool AnnotationType = iota
	TypeString
	TypeBytes
	TypeI16
	TypeI32
	TypeI64
	TypeDouble
)

// Annotation is a timestamped event on a span, such as a core
// cs/sr/ss/cr lifecycle marker.
type Annotation struct {
	Timestamp int64 // microseconds since epoch
	Value     string
	Endpoint  *Endpoint
}

// BinaryAnnotation is a key/typed-value tag on a span, also used to
// carry client/server endpoint identity (ca/sa).
type BinaryAnnotation struct {
	Key      string
	Value    []byte
	Type     AnnotationType
	Endpoint *Endpoint
}

// StringValue returns Value decoded as UTF-8 text. Callers must only
// call this for a BinaryAnnotation whose Type is TypeString.
func (b BinaryAnnotation) StringValue() string {
	return string(b.Value)
}
