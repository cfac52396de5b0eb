package fastembed

import "errors"

// ErrFastEmbedUnavailable is returned when the binary was built without cgo.
var ErrFastEmbedUnavailable = errors.New("fastembed: not available (binary built without cgo, use the openai embedder instead)")
