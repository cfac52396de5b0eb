//go:build cgo

package pdftext

import (
	"context"
	"fmt"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
)

// FitzRenderer rasterizes pages with MuPDF.
type FitzRenderer struct {
	DPI float64
}

// RenderPages returns one PNG per page.
func (r FitzRenderer) RenderPages(ctx context.Context, path string) ([][]byte, error) {
	dpi := r.DPI
	if dpi <= 0 {
		dpi = 300
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	images := make([][]byte, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImagePNG(i, dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// TesseractEngine runs Tesseract through gosseract. A new client is created
// per call since gosseract clients are not safe for concurrent use.
type TesseractEngine struct {
	Language string
}

// Recognize returns the text Tesseract finds in image.
func (t TesseractEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()

	if t.Language != "" {
		if err := client.SetLanguage(t.Language); err != nil {
			return "", err
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", err
	}
	return client.Text()
}
