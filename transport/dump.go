package transport

import (
	"os"

	"github.com/rob-gra/ebusd-go/ebuserr"
)

// Dump is a rolling raw-byte capture of the unescaped wire stream, for
// offline replay and analysis (spec §6.4). It rolls the current file
// to a ".old" sibling once it reaches MaxSize, truncating the
// previous ".old" if one exists.
type Dump struct {
	path    string
	maxSize int64
	file    *os.File
	written int64
}

const defaultMaxSize = 10 * 1024 * 1024

// NewDump opens (creating if needed) path for append. An existing file
// is not rolled over at open; if it is already at or over maxSize, the
// next Write rolls it over. maxSize <= 0 uses a 10MiB default.
func NewDump(path string, maxSize int64) (*Dump, error) {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	d := &Dump{path: path, maxSize: maxSize}
	if err := d.open(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dump) open() error {
	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return ebuserr.Wrap(ebuserr.DeviceIO, "open dump file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return ebuserr.Wrap(ebuserr.DeviceIO, "stat dump file", err)
	}
	d.file = f
	d.written = info.Size()
	return nil
}

// Write appends raw bytes, rolling over to path+".old" first if this
// write would exceed maxSize.
func (d *Dump) Write(data []byte) error {
	if d.written+int64(len(data)) > d.maxSize {
		if err := d.roll(); err != nil {
			return err
		}
	}
	n, err := d.file.Write(data)
	if err != nil {
		return ebuserr.Wrap(ebuserr.DeviceIO, "write dump file", err)
	}
	d.written += int64(n)
	return nil
}

func (d *Dump) roll() error {
	if err := d.file.Close(); err != nil {
		return ebuserr.Wrap(ebuserr.DeviceIO, "close dump file before roll", err)
	}
	oldPath := d.path + ".old"
	if err := os.Rename(d.path, oldPath); err != nil {
		return ebuserr.Wrap(ebuserr.DeviceIO, "roll dump file", err)
	}
	return d.open()
}

func (d *Dump) Close() error {
	if d.file == nil {
		return nil
	}
	return d.file.Close()
}
