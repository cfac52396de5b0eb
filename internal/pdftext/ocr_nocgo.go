//go:build !cgo

package pdftext

import "context"

// FitzRenderer is a stub for non-cgo builds.
type FitzRenderer struct {
	DPI float64
}

// RenderPages returns ErrOCRUnavailable.
func (FitzRenderer) RenderPages(_ context.Context, _ string) ([][]byte, error) {
	return nil, ErrOCRUnavailable
}

// TesseractEngine is a stub for non-cgo builds.
type TesseractEngine struct {
	Language string
}

// Recognize returns ErrOCRUnavailable.
func (TesseractEngine) Recognize(_ context.Context, _ []byte) (string, error) {
	return "", ErrOCRUnavailable
}
