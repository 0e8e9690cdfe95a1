package pipeline

import "context"

// Transformer decodes input, fits it within limit x limit and encodes it as
// WebP at the given quality. Decode failures wrap ErrDecode, encode failures
// wrap ErrEncode.
type Transformer interface {
	Transform(ctx context.Context, input []byte, limit, quality int) (data []byte, width, height int, err error)
}
