package visual

import (
	"image"
	"image/color"
	"testing"
)

func TestFilterAltText(t *testing.T) {
	cases := map[string]string{
		"":                                          "",
		"short":                                     "",
		"Chart description automatically generated": "",
		"chart":                                      "",
		"A detailed rendering of the quarterly revenue breakdown by region": "A detailed rendering of the quarterly revenue breakdown by region",
	}
	for in, want := range cases {
		if got := FilterAltText(in); got != want {
			t.Errorf("FilterAltText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokenCountFormulas(t *testing.T) {
	if got := tokenCountFormulaA(1000, 750); got != 1000 {
		t.Errorf("formula A = %d, want 1000", got)
	}
	if got := tokenCountFormulaB(512, 512); got != 255 {
		t.Errorf("formula B = %d, want 255", got)
	}
}

func TestFitWindowUpscalesSmallImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.White)
		}
	}
	out := fitWindow(img)
	b := out.Bounds()
	if b.Dx() < minEdge && b.Dy() < minEdge {
		t.Fatalf("expected upscale past minEdge, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestFitWindowCapsLargeImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4000, 3000))
	out := fitWindow(img)
	b := out.Bounds()
	if b.Dx() > maxEdge || b.Dy() > maxEdge {
		t.Fatalf("expected edges capped at %d, got %dx%d", maxEdge, b.Dx(), b.Dy())
	}
}

func TestChunkContentWithAndWithoutAlt(t *testing.T) {
	withAlt := ChunkContent("chart", "Revenue", "transcribed text", "filtered alt text")
	if withAlt != "chart: Revenue\ntranscribed text\nfiltered alt text" {
		t.Fatalf("got %q", withAlt)
	}
	withoutAlt := ChunkContent("chart", "Revenue", "transcribed text", "")
	if withoutAlt != "chart: Revenue\ntranscribed text" {
		t.Fatalf("got %q", withoutAlt)
	}
}
