package camera

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// DecodeImage decodes a single image. PDFs decode to their first page.
func DecodeImage(data []byte, contentType string) (image.Image, error) {
	images, err := decodeImages(data, contentType, 1)
	if err != nil {
		return nil, err
	}
	return images[0], nil
}

// DecodeImages decodes JPEG, PNG, GIF, HEIC/HEIF images and every page of a PDF
func DecodeImages(data []byte, contentType string) ([]image.Image, error) {
	return decodeImages(data, contentType, 0)
}

// decodeImages renders at most maxPages pages of a PDF; zero means all of them
func decodeImages(data []byte, contentType string, maxPages int) ([]image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	if mimeType == "application/pdf" || isPDFFormat(data) {
		return pdfPages(data, maxPages)
	}

	// Go's standard image package doesn't support HEIC, which is what iPhones capture
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return []image.Image{img}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return []image.Image{img}, nil
}

// pdfPages renders the first maxPages pages of a PDF, or all of them when maxPages is zero
func pdfPages(data []byte, maxPages int) ([]image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	count := doc.NumPage()
	if maxPages > 0 && maxPages < count {
		count = maxPages
	}

	pages := make([]image.Image, 0, count)
	for n := 0; n < count; n++ {
		img, err := doc.Image(n)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", n, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

func isPDFFormat(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// ContentTypeForPath guesses the content type from a file extension
func ContentTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".pdf":
		return "application/pdf"
	default:
		return ""
	}
}
