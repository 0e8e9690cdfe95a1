//go:build !govips || !cgo

package pipeline

func Startup(int) error {
	return nil
}

func Shutdown() {}

func newTransformer() (Transformer, error) {
	return stdlibTransformer{}, nil
}

func Backend() string {
	return "imaging+webp"
}
