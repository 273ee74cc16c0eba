package pdfreader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeText struct {
	pages []string
	fail  map[int]error
	meta  map[string]string
}

func (f *fakeText) NumPages() int { return len(f.pages) }

func (f *fakeText) PageText(_ context.Context, page int) (string, error) {
	if err := f.fail[page]; err != nil {
		return "", err
	}
	return f.pages[page], nil
}

func (f *fakeText) Metadata() map[string]string { return f.meta }

// fakeRenderer 为每页返回一张以页号为内容的“图片”。
type fakeRenderer struct {
	fail   map[int]error
	images map[int][][]byte
}

func (f *fakeRenderer) RenderPage(_ context.Context, page int) ([][]byte, error) {
	if err := f.fail[page]; err != nil {
		return nil, err
	}
	if imgs, ok := f.images[page]; ok {
		return imgs, nil
	}
	return [][]byte{[]byte(fmt.Sprintf("page-%d", page))}, nil
}

// fakeOCR 按“图片”内容查表返回文字。
type fakeOCR struct {
	texts map[string]string
	calls int
}

func (f *fakeOCR) ExtractText(_ context.Context, image []byte) (string, error) {
	f.calls++
	text, ok := f.texts[string(image)]
	if !ok {
		return "", errors.New("unreadable image")
	}
	return text, nil
}

func (f *fakeOCR) Close() error { return nil }

func TestMergeTexts(t *testing.T) {
	assert.Equal(t, "a b c d", MergeTexts("a b c", "b c d"))
	assert.Equal(t, "a b c d", MergeTexts("b c d", "a b c"))
	assert.Equal(t, "x y", MergeTexts("y x y", "x"))

	assert.Equal(t, "keep  spacing", MergeTexts("keep  spacing", ""))
	assert.Equal(t, "only ocr", MergeTexts("   ", "only ocr"))
	assert.Equal(t, "", MergeTexts("", ""))

	once := MergeTexts("delta alpha", "charlie alpha bravo")
	assert.Equal(t, once, MergeTexts(once, once))
}

func TestTextResultStatus(t *testing.T) {
	assert.Equal(t, TextPresent, newTextResult("  hi ", nil).Status())
	assert.Equal(t, "hi", newTextResult("  hi ", nil).Text)
	assert.Equal(t, TextEmpty, newTextResult(" \n", nil).Status())

	failed := newTextResult("partial", errors.New("boom"))
	assert.Equal(t, TextFailed, failed.Status())
	assert.Empty(t, failed.Text)
	assert.Equal(t, "failed", failed.Status().String())
}

func TestProcessPDFKeepsFailedPages(t *testing.T) {
	src := &fakeText{
		pages: []string{"alpha beta", "unused", "gamma"},
		fail:  map[int]error{1: errors.New("broken content stream")},
	}
	engine := &fakeOCR{texts: map[string]string{"page-0": "beta delta", "page-1": "scanned words", "page-2": "gamma"}}

	r, err := OpenBytes([]byte("%PDF-fake"), WithTextSource(src), WithOCR(engine), WithPageRenderer(&fakeRenderer{}))
	require.NoError(t, err)

	results, err := r.ProcessPDF(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 1, results[0].PageNumber)
	assert.Equal(t, "alpha beta delta", results[0].Merged)

	p2 := results[1]
	assert.Equal(t, 2, p2.PageNumber)
	assert.Equal(t, "", p2.Native.Text)
	assert.Equal(t, TextFailed, p2.Native.Status())
	assert.Equal(t, TextPresent, p2.OCR.Status())
	assert.Equal(t, "scanned words", p2.Merged)

	assert.Equal(t, "gamma", results[2].Merged)
	assert.Equal(t, 3, engine.calls)
}

func TestOCRFailureIsRecorded(t *testing.T) {
	src := &fakeText{pages: []string{"native only", ""}}
	renderer := &fakeRenderer{fail: map[int]error{0: errors.New("mupdf exploded")}}
	engine := &fakeOCR{texts: map[string]string{}}

	r, err := OpenBytes([]byte("%PDF-fake"), WithTextSource(src), WithOCR(engine), WithPageRenderer(renderer))
	require.NoError(t, err)

	p1 := r.ProcessPage(context.Background(), 0)
	assert.Equal(t, TextFailed, p1.OCR.Status())
	assert.Equal(t, "native only", p1.Merged)

	p2 := r.ProcessPage(context.Background(), 1)
	assert.Equal(t, TextEmpty, p2.Native.Status())
	assert.Equal(t, TextFailed, p2.OCR.Status(), "unreadable image")
	assert.Equal(t, "", p2.Merged)
}

func TestOCRJoinsImagesByLine(t *testing.T) {
	src := &fakeText{pages: []string{""}}
	renderer := &fakeRenderer{images: map[int][][]byte{0: {[]byte("a"), []byte("bad"), []byte("b")}}}
	engine := &fakeOCR{texts: map[string]string{"a": " first image ", "b": "second image"}}
	r, err := OpenBytes([]byte("%PDF-fake"), WithTextSource(src), WithOCR(engine), WithPageRenderer(renderer))
	require.NoError(t, err)

	res := r.ProcessPage(context.Background(), 0)
	require.NoError(t, res.OCR.Err)
	assert.Equal(t, "first image\nsecond image", res.OCR.Text)
	assert.Equal(t, 3, engine.calls)
}

func TestOCRDisabled(t *testing.T) {
	r, err := OpenBytes([]byte("%PDF-fake"), WithTextSource(&fakeText{pages: []string{"text"}}))
	require.NoError(t, err)

	p := r.ProcessPage(context.Background(), 0)
	assert.Equal(t, TextEmpty, p.OCR.Status())
	assert.Equal(t, "text", p.Merged)
}

func TestCompleteText(t *testing.T) {
	src := &fakeText{
		pages: []string{"same text", "", "native two"},
		meta:  map[string]string{"Title": "Report", "Author": "Ann"},
	}
	engine := &fakeOCR{texts: map[string]string{"page-0": "same text", "page-1": "", "page-2": "ocr two"}}

	r, err := OpenBytes([]byte("%PDF-fake"), WithTextSource(src), WithOCR(engine), WithPageRenderer(&fakeRenderer{}))
	require.NoError(t, err)

	got, err := r.CompleteText(context.Background())
	require.NoError(t, err)

	want := strings.Join([]string{
		"=== Document Metadata ===",
		"Author: Ann",
		"Title: Report",
		strings.Repeat("=", 30) + "\n",
		"\n--- Page 1 ---\n",
		"same text",
		"\n--- Page 3 ---\n",
		"native two",
		"ocr two",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestCompleteTextWithoutMetadata(t *testing.T) {
	assert.Equal(t, "\n--- Page 1 ---\n\nhello", formatCompleteText(nil, []PageResult{
		{PageNumber: 1, Native: TextResult{Text: "hello"}},
	}))
}

func TestProcessPDFCancelled(t *testing.T) {
	r, err := OpenBytes([]byte("%PDF-fake"), WithTextSource(&fakeText{pages: []string{"a", "b"}}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.ProcessPDF(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenErrors(t *testing.T) {
	_, err := OpenBytes(nil)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = Open(bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, ErrEmptyFile)

	empty := filepath.Join(t.TempDir(), "empty.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = OpenFile(empty)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = OpenBytes([]byte("definitely not a pdf"))
	assert.Error(t, err)

	_, err = OpenBytes([]byte("%PDF-fake"), WithTextSource(&fakeText{}), WithOCR(&fakeOCR{}), WithRenderer("ghostscript"))
	assert.ErrorContains(t, err, "unknown renderer")
}

func TestEmbeddedImageFileName(t *testing.T) {
	assert.Equal(t, "page_2_image_Im0.jpg", EmbeddedImage{Page: 2, Name: "Im0", FileType: "JPG"}.FileName())
	assert.Equal(t, "page_1_image_X.png", EmbeddedImage{Page: 1, Name: "/X"}.FileName())
}

func TestGrayscalePNG(t *testing.T) {
	img := imaging.New(4, 4, color.NRGBA{R: 255, A: 255})
	data, err := grayscalePNG(img)
	require.NoError(t, err)

	decoded, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	r, g, b, _ := decoded.At(1, 1).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}
