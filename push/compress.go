package push

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// decompress inflates a zlib-compressed PublishMessage payload.
func decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
