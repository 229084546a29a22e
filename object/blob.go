package object

// Blob is an opaque content payload. It carries no structure of its own;
// callers retrieve Data from the object store and treat it as raw bytes.
type Blob struct {
	Data []byte
}

// Encode returns the blob's canonical payload: itself.
func (b Blob) Encode() ([]byte, error) {
	return b.Data, nil
}

// DecodeBlob wraps a byte slice as a Blob. There is no grammar to validate.
func DecodeBlob(data []byte) (Blob, error) {
	return Blob{Data: data}, nil
}
