//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

// NewResizer returns the pure-Go resizer used when libvips is not compiled in.
func NewResizer() Resizer {
	return stdlibResizer{}
}

func ResizerName() string {
	return "stdlib"
}
