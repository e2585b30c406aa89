//go:build unix

package medium

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mappedObject is a read-only memory mapping of a whole file.
type mappedObject struct {
	data []byte
}

func mapFile(f *os.File, size int64) (*mappedObject, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", f.Name(), err)
	}
	return &mappedObject{data: data}, nil
}

func (o *mappedObject) Bytes() []byte { return o.data }

func (o *mappedObject) Close() error {
	if o.data == nil {
		return nil
	}
	err := unix.Munmap(o.data)
	o.data = nil
	return err
}
