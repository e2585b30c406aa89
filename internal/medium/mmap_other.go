//go:build !unix

package medium

import (
	"fmt"
	"io"
	"os"
)

func mapFile(f *os.File, size int64) (bytesObject, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name(), err)
	}
	return bytesObject(data), nil
}
