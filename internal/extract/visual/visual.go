// Package visual implements C6 Visual Extractor: page-to-image rendering,
// resize into the vision-model window, content-addressed dedup hashing,
// alt-text usefulness filtering, and dual token-count estimation.
package visual

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"regexp"
	"strings"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/nfnt/resize"

	"github.com/amplify-rag/ingestcore/internal/apperr"
)

const (
	minEdge       = 200
	maxEdge       = 1568
	maxShortEdge  = 768
	dedupHashLen  = 16
	altTextMinLen = 10
)

// Page is one rendered page, ready for the text projection / chunk
// assembly step that turns it into the C6 output chunk shape.
type Page struct {
	PageNumber  int
	Image       []byte
	Format      string // "jpeg", "png", "gif", "webp"
	Width       int
	Height      int
	Hash        string // first 16 hex chars of sha256(image bytes)
	AltText     string // "" if filtered out as unuseful
	TokensA     int    // ceil(w*h/750)
	TokensB     int    // 85 + 170*ceil(w/512)*ceil(h/512)
}

var altTextBlocklist = regexp.MustCompile(
	`(?i)(description automatically generated|chart description|logo description|a picture containing|^chart$|^image$|^logo$|^graphic$|^photo$)`,
)

// RenderDocument rasterizes every page of a PDF-like document into images
// sized within the vision model's supported window, preserving aspect
// ratio and up-scaling pages that start out smaller than the minimum edge.
func RenderDocument(data []byte, altTexts map[int]string) ([]Page, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, apperr.Corruption("open document for rendering", err)
	}
	defer doc.Close()

	var pages []Page
	seen := map[string]struct{}{}

	for i := 0; i < doc.NumPage(); i++ {
		img, err := doc.Image(i)
		if err != nil {
			continue
		}
		resized := fitWindow(img)
		encoded, format, err := encodeSupported(resized)
		if err != nil {
			continue
		}

		hash := contentHash(encoded)
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}

		bounds := resized.Bounds()
		w, h := bounds.Dx(), bounds.Dy()

		page := Page{
			PageNumber: i + 1,
			Image:      encoded,
			Format:     format,
			Width:      w,
			Height:     h,
			Hash:       hash,
			AltText:    FilterAltText(altTexts[i+1]),
			TokensA:    tokenCountFormulaA(w, h),
			TokensB:    tokenCountFormulaB(w, h),
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// fitWindow resizes an image so both edges land within [minEdge, maxEdge]
// and the short edge is capped at maxShortEdge, preserving aspect ratio.
func fitWindow(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return img
	}

	scale := 1.0
	shortEdge := w
	if h < shortEdge {
		shortEdge = h
	}
	if shortEdge > maxShortEdge {
		scale = float64(maxShortEdge) / float64(shortEdge)
	}

	longEdge := w
	if h > longEdge {
		longEdge = h
	}
	scaledLong := float64(longEdge) * scale
	if scaledLong > maxEdge {
		scale = float64(maxEdge) / float64(longEdge)
	}

	smallestEdge := w
	if h < smallestEdge {
		smallestEdge = h
	}
	scaledSmallest := float64(smallestEdge) * scale
	if scaledSmallest < minEdge {
		scale = float64(minEdge) / float64(smallestEdge)
	}

	if scale == 1.0 {
		return img
	}
	newW := uint(math.Round(float64(w) * scale))
	newH := uint(math.Round(float64(h) * scale))
	return resize.Resize(newW, newH, img, resize.Lanczos3)
}

// encodeSupported returns the image encoded in a vision-model-supported
// format. Rendered pages come back from fitz as RGBA, which has no native
// "is this already JPEG/PNG/GIF/WEBP" notion, so every page is re-encoded
// to PNG, the lossless member of the supported set.
func encodeSupported(img image.Image) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", apperr.Fatal("encode page image", err)
	}
	return buf.Bytes(), "png", nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:dedupHashLen]
}

// FilterAltText applies the usefulness filter from spec §4.6: empty,
// too-short-after-normalization, and auto-generator-pattern strings are
// all rejected, returning "" rather than the original text.
func FilterAltText(alt string) string {
	normalized := strings.TrimSpace(alt)
	if normalized == "" {
		return ""
	}
	if len(normalized) < altTextMinLen {
		return ""
	}
	if altTextBlocklist.MatchString(normalized) {
		return ""
	}
	return normalized
}

func tokenCountFormulaA(w, h int) int {
	return int(math.Ceil(float64(w*h) / 750))
}

func tokenCountFormulaB(w, h int) int {
	tilesW := math.Ceil(float64(w) / 512)
	tilesH := math.Ceil(float64(h) / 512)
	return 85 + int(170*tilesW*tilesH)
}

// ChunkContent assembles the C6 output chunk content string:
// "<type>: <title>\n<transcription>\n[<filtered_alt>]?".
func ChunkContent(docType, title, transcription, filteredAlt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n%s", docType, title, transcription)
	if filteredAlt != "" {
		b.WriteByte('\n')
		b.WriteString(filteredAlt)
	}
	return b.String()
}

// decodeFallback is retained for formats that arrive pre-rasterized
// (e.g. a single-page image upload routed straight to the visual lane
// without a PDF wrapper) and need the same dedup/resize/encode pipeline
// without going through fitz.
func decodeFallback(data []byte) (image.Image, error) {
	if img, err := jpegDecode(data); err == nil {
		return img, nil
	}
	if img, err := pngDecode(data); err == nil {
		return img, nil
	}
	if img, err := gifDecode(data); err == nil {
		return img, nil
	}
	return nil, apperr.Corruption("decode image", fmt.Errorf("unsupported image encoding"))
}

func jpegDecode(data []byte) (image.Image, error) { return jpeg.Decode(bytes.NewReader(data)) }
func pngDecode(data []byte) (image.Image, error)  { return png.Decode(bytes.NewReader(data)) }
func gifDecode(data []byte) (image.Image, error)  { return gif.Decode(bytes.NewReader(data)) }

// RenderImage runs a single pre-rasterized image through the same
// resize/encode/hash/alt-text pipeline as RenderDocument, for the
// single-image visual lane input.
func RenderImage(data []byte, pageNumber int, altText string) (Page, error) {
	img, err := decodeFallback(data)
	if err != nil {
		return Page{}, err
	}
	resized := fitWindow(img)
	encoded, format, err := encodeSupported(resized)
	if err != nil {
		return Page{}, err
	}
	bounds := resized.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	return Page{
		PageNumber: pageNumber,
		Image:      encoded,
		Format:     format,
		Width:      w,
		Height:     h,
		Hash:       contentHash(encoded),
		AltText:    FilterAltText(altText),
		TokensA:    tokenCountFormulaA(w, h),
		TokensB:    tokenCountFormulaB(w, h),
	}, nil
}
