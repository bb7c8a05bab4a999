package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type fakeCodec struct {
	mu        sync.Mutex
	bounds    image.Rectangle
	decodes   int
	encodedW  int
	encodedH  int
	quality   float64
	decodeErr error
	encodeErr error
}

func (c *fakeCodec) Decode([]byte) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decodes++
	if c.decodeErr != nil {
		return nil, c.decodeErr
	}
	return c.bounds, nil
}

func (c *fakeCodec) Encode(_ image.Image, w, h int, _ string, q float64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encodedW, c.encodedH, c.quality = w, h, q
	if c.encodeErr != nil {
		return nil, c.encodeErr
	}
	return make([]byte, w*h/8), nil
}

func TestValidateFile(t *testing.T) {
	v := NewValidator(nil)
	tests := []struct {
		name     string
		file     *File
		kind     Kind
		wantType bool
		wantSize bool
	}{
		{"jpeg ok", &File{Name: "a.jpg", Type: "image/jpeg", Data: make([]byte, 1024)}, KindImage, false, false},
		{"image too large", &File{Name: "b.png", Type: "image/png", Data: make([]byte, 10*mib+1)}, KindImage, false, true},
		{"image at ceiling", &File{Name: "c.png", Type: "image/png", Data: make([]byte, 10*mib)}, KindImage, false, false},
		{"pdf as image", &File{Name: "d.pdf", Type: "application/pdf", Data: []byte("%PDF")}, KindImage, true, false},
		{"pdf as file", &File{Name: "d.pdf", Type: "application/pdf", Data: []byte("%PDF")}, KindFile, false, false},
		{"document too large", &File{Name: "e.txt", Type: "text/plain", Data: make([]byte, 5*mib+1)}, KindFile, false, true},
		{"video ok", &File{Name: "f.mp4", Type: "video/mp4", Data: make([]byte, 20*mib)}, KindVideo, false, false},
		{"audio too large", &File{Name: "g.mp3", Type: "audio/mpeg", Data: make([]byte, 20*mib+1)}, KindAudio, false, true},
		{"unknown kind", &File{Name: "h.bin", Type: "application/octet-stream"}, Kind("archive"), true, false},
	}

	for _, tt := range tests {
		err := v.ValidateFile(tt.file, tt.kind)
		var typeErr *UnsupportedTypeError
		var sizeErr *FileTooLargeError
		if got := errors.As(err, &typeErr); got != tt.wantType {
			t.Errorf("%s: UnsupportedTypeError = %v, want %v (err %v)", tt.name, got, tt.wantType, err)
		}
		if got := errors.As(err, &sizeErr); got != tt.wantSize {
			t.Errorf("%s: FileTooLargeError = %v, want %v (err %v)", tt.name, got, tt.wantSize, err)
		}
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, limit  int
		wantW, wantH int
	}{
		{4000, 3000, 1920, 1920, 1440},
		{3000, 4000, 1920, 1440, 1920},
		{1000, 800, 1920, 1000, 800},
		{1920, 1080, 1920, 1920, 1080},
		{5000, 1, 1000, 1000, 1},
	}
	for _, tt := range tests {
		w, h := fitWithin(tt.w, tt.h, tt.limit)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("fitWithin(%d, %d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.limit, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestCompressionRatio(t *testing.T) {
	tests := []struct {
		orig, opt int64
		want      float64
	}{
		{1000, 1000, 0},
		{1000, 250, 75},
		{3, 2, 33.3},
		{0, 0, 0},
		{100, 120, 0},
	}
	for _, tt := range tests {
		if got := CompressionRatio(tt.orig, tt.opt); got != tt.want {
			t.Errorf("CompressionRatio(%d, %d) = %v, want %v", tt.orig, tt.opt, got, tt.want)
		}
	}
}

func TestCreateOptimizedFileLargeJPEG(t *testing.T) {
	codec := &fakeCodec{bounds: image.Rect(0, 0, 4000, 3000)}
	o := NewOptimizer(codec, nil, nil)
	f := &File{Name: "holiday.jpg", Type: "image/jpeg", Data: make([]byte, 12*mib)}

	ref, err := o.CreateOptimizedFile(context.Background(), f, Options{MaxImageSize: 1920, Quality: 0.8, MaxFileSize: 5 * mib})
	if err != nil {
		t.Fatal(err)
	}
	defer ref.Release()

	if codec.encodedW != 1920 || codec.encodedH != 1440 {
		t.Errorf("encoded at %dx%d, want 1920x1440", codec.encodedW, codec.encodedH)
	}
	if codec.quality != 0.8 {
		t.Errorf("quality = %v, want 0.8", codec.quality)
	}
	if ref.OptimizedSize >= ref.OriginalSize {
		t.Errorf("OptimizedSize %d should be below OriginalSize %d", ref.OptimizedSize, ref.OriginalSize)
	}
	if ref.CompressionRatio <= 0 {
		t.Errorf("CompressionRatio = %v, want > 0", ref.CompressionRatio)
	}
	if ref.Name != "holiday.jpg" || ref.Source.Type != "image/jpeg" || ref.Type != KindImage {
		t.Errorf("name/type not preserved: %q %q %q", ref.Name, ref.Source.Type, ref.Type)
	}
	if ref.PreviewURL() == "" {
		t.Error("staged attachment should have a live preview")
	}
}

func TestCreateOptimizedFileSmallJPEGUnchanged(t *testing.T) {
	codec := &fakeCodec{bounds: image.Rect(0, 0, 64, 64)}
	o := NewOptimizer(codec, nil, nil)
	f := &File{Name: "icon.jpg", Type: "image/jpeg", Data: make([]byte, 2048)}

	ref, err := o.CreateOptimizedFile(context.Background(), f, Options{MaxImageSize: 1920, Quality: 0.8, MaxFileSize: 5 * mib})
	if err != nil {
		t.Fatal(err)
	}
	defer ref.Release()

	if codec.decodes != 0 {
		t.Errorf("small file was decoded %d times, want 0", codec.decodes)
	}
	if ref.OptimizedSize != ref.OriginalSize || ref.CompressionRatio != 0 {
		t.Errorf("got sizes %d/%d ratio %v, want unchanged", ref.OriginalSize, ref.OptimizedSize, ref.CompressionRatio)
	}
	if ref.Source != f {
		t.Error("unchanged file should be returned as-is")
	}
}

func TestOptimizeFilePassesThroughVideo(t *testing.T) {
	codec := &fakeCodec{}
	o := NewOptimizer(codec, nil, nil)
	f := &File{Name: "clip.mp4", Type: "video/mp4", Data: make([]byte, 8*mib)}

	got, err := o.OptimizeFile(context.Background(), f, Options{MaxFileSize: mib})
	if err != nil {
		t.Fatal(err)
	}
	if got != f || codec.decodes != 0 {
		t.Error("video should be returned unchanged without decoding")
	}
}

func TestOptimizeFileDecodeFailure(t *testing.T) {
	codec := &fakeCodec{decodeErr: errors.New("corrupt")}
	o := NewOptimizer(codec, nil, nil)
	f := &File{Name: "broken.png", Type: "image/png", Data: make([]byte, 2*mib)}

	_, err := o.OptimizeFile(context.Background(), f, Options{MaxFileSize: mib})
	var perr *ProcessingError
	if !errors.As(err, &perr) || perr.Op != "decode" {
		t.Fatalf("err = %v, want decode ProcessingError", err)
	}
	if codec.decodes != 1 {
		t.Errorf("decodes = %d, want exactly 1 (no retry)", codec.decodes)
	}
}

func TestOptimizeFileKeepsTypesWithoutEncoder(t *testing.T) {
	codec := &fakeCodec{bounds: image.Rect(0, 0, 4000, 3000), encodeErr: fmt.Errorf("image/webp: %w", ErrEncodeUnsupported)}
	o := NewOptimizer(codec, nil, nil)
	f := &File{Name: "sticker.webp", Type: "image/webp", Data: make([]byte, 3*mib)}

	ref, err := o.CreateOptimizedFile(context.Background(), f, Options{MaxFileSize: mib})
	if err != nil {
		t.Fatalf("CreateOptimizedFile() error = %v, want original kept", err)
	}
	defer ref.Release()
	if ref.Source != f || ref.CompressionRatio != 0 {
		t.Errorf("got source %p ratio %v, want original with ratio 0", ref.Source, ref.CompressionRatio)
	}
}

func TestOptimizeFilePassesThroughAnimatedGIF(t *testing.T) {
	anim := &gif.GIF{}
	for i := 0; i < 2; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, 8, 8), palette.Plan9)
		frame.SetColorIndex(i, i, uint8(i+1))
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		t.Fatal(err)
	}
	f := &File{Name: "wave.gif", Type: "image/gif", Data: buf.Bytes()}

	codec := &fakeCodec{bounds: image.Rect(0, 0, 8, 8)}
	got, err := NewOptimizer(codec, nil, nil).OptimizeFile(context.Background(), f, Options{MaxFileSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got != f || codec.decodes != 0 {
		t.Errorf("animated GIF was re-encoded (decodes = %d)", codec.decodes)
	}
}

func TestOptimizeFilesReleasesOnFailure(t *testing.T) {
	previews := NewPreviews()
	o := NewOptimizer(&fakeCodec{decodeErr: errors.New("corrupt")}, previews, nil)
	files := []*File{
		{Name: "a.txt", Type: "text/plain", Data: []byte("hello")},
		{Name: "b.jpg", Type: "image/jpeg", Data: make([]byte, 2*mib)},
		{Name: "c.txt", Type: "text/plain", Data: []byte("world")},
	}

	if _, err := o.OptimizeFiles(context.Background(), files, Options{MaxFileSize: mib}); err == nil {
		t.Fatal("expected an error")
	}
	if previews.Len() != 0 {
		t.Errorf("%d preview handles leaked after failure", previews.Len())
	}
}

func TestOptimizeFilesKeepsOrder(t *testing.T) {
	o := NewOptimizer(&fakeCodec{}, nil, nil)
	files := []*File{
		{Name: "1.txt", Type: "text/plain", Data: []byte("1")},
		{Name: "2.txt", Type: "text/plain", Data: []byte("22")},
		{Name: "3.txt", Type: "text/plain", Data: []byte("333")},
	}
	refs, err := o.OptimizeFiles(context.Background(), files, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer ReleaseAll(refs)
	for i, r := range refs {
		if r.Name != files[i].Name {
			t.Errorf("refs[%d] = %s, want %s", i, r.Name, files[i].Name)
		}
	}
}

func TestStdCodecShrinksNoisyJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 640, 480))
	rng := rand.New(rand.NewSource(1))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			src.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	f := &File{Name: "noise.jpg", Type: "image/jpeg", Data: buf.Bytes()}

	o := NewOptimizer(nil, nil, nil)
	out, err := o.OptimizeFile(context.Background(), f, Options{MaxImageSize: 160, Quality: 0.6, MaxFileSize: 50 * 1024})
	if err != nil {
		t.Fatal(err)
	}
	if out.Size() >= f.Size() {
		t.Fatalf("optimized %d bytes, original %d", out.Size(), f.Size())
	}
	img, err := jpeg.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 160 || b.Dy() != 120 {
		t.Errorf("optimized bounds %v, want 160x120", b)
	}
}

func TestStdCodecRejectsWebPEncode(t *testing.T) {
	_, err := StdCodec{}.Encode(image.Rect(0, 0, 2, 2), 2, 2, "image/webp", 0.8)
	if !errors.Is(err, ErrEncodeUnsupported) {
		t.Fatalf("err = %v, want ErrEncodeUnsupported", err)
	}
}

func TestPreviewReleaseOnce(t *testing.T) {
	p := NewPreviews()
	f := &File{Name: "a.png", Type: "image/png"}
	h1 := p.Create(f)
	h2 := p.Create(f)
	if h1.URL == h2.URL {
		t.Fatal("handles must be unique")
	}
	if got, ok := p.Lookup(h1.URL); !ok || got != f {
		t.Fatal("Lookup of live handle failed")
	}

	h1.Release()
	h1.Release()
	if h1.Live() {
		t.Error("released handle still live")
	}
	if !h2.Live() || p.Len() != 1 {
		t.Errorf("releasing one handle affected another, Len() = %d", p.Len())
	}
}

func TestReadFileDetectsType(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "pic.png")
	os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n"), 0o644)
	noext := filepath.Join(dir, "blob")
	os.WriteFile(noext, []byte("%PDF-1.4 rest"), 0o644)

	f, err := ReadFile(png)
	if err != nil {
		t.Fatal(err)
	}
	if f.Type != "image/png" || f.Name != "pic.png" {
		t.Errorf("got %q %q", f.Name, f.Type)
	}

	f, err = ReadFile(noext)
	if err != nil {
		t.Fatal(err)
	}
	if f.Type != "application/pdf" {
		t.Errorf("sniffed type = %q, want application/pdf", f.Type)
	}
}

func TestAudioAliasesValidate(t *testing.T) {
	dir := t.TempDir()
	wav := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)
	ogg := append([]byte("OggS\x00"), make([]byte, 32)...)
	files := map[string][]byte{
		"voice.wav": wav,
		"voice":     wav,
		"note":      ogg,
	}

	v := NewValidator(nil)
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
		f, err := ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if KindOf(f.Type) != KindAudio {
			t.Errorf("%s: type %q is not audio", name, f.Type)
			continue
		}
		if err := v.ValidateFile(f, KindAudio); err != nil {
			t.Errorf("%s: ValidateFile() = %v", name, err)
		}
	}

	raw := &File{Name: "x.wav", Type: "audio/x-wav", Data: wav}
	if err := v.ValidateFile(raw, KindAudio); err != nil {
		t.Errorf("alias type rejected: %v", err)
	}
}
