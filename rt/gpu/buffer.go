package gpu

import "fmt"

// EnsureBuffer makes *buf at least len(data)+headroom bytes (4 byte aligned), recreating it
// when too small, then uploads data at offset 0. Reports whether the buffer was recreated,
// in which case bind groups referencing the old buffer are stale.
func EnsureBuffer(d Device, buf *Buffer, label string, data []byte, usage BufferUsage, headroom int) (bool, error) {
	neededSize := uint64(len(data) + headroom)
	if neededSize%4 != 0 {
		neededSize += 4 - (neededSize % 4)
	}
	if neededSize == 0 {
		neededSize = 4
	}

	grown := false
	current := *buf
	if current == nil || current.Size() < neededSize {
		if current != nil {
			current.Release()
			*buf = nil
		}
		newBuf, err := d.CreateBuffer(BufferDescriptor{
			Label: label,
			Size:  neededSize,
			Usage: usage | BufferUsageCopyDst,
		})
		if err != nil {
			return false, fmt.Errorf("failed to create %s: %w", label, err)
		}
		*buf = newBuf
		grown = true
	}

	if len(data) > 0 {
		if err := d.WriteBuffer(*buf, 0, data); err != nil {
			return grown, fmt.Errorf("failed to write %s: %w", label, err)
		}
	}
	return grown, nil
}

// ZeroBuffer clears the first size bytes of buf.
func ZeroBuffer(d Device, buf Buffer, size uint64) error {
	if size == 0 || buf == nil {
		return nil
	}
	return d.WriteBuffer(buf, 0, make([]byte, size))
}
