package steps

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"
)

// compositeTileSheet lays out every "tile_*.jpg" frame in framesDir onto a
// cols x rows grid of tw x th tiles, writing one JPEG to dstPath.
// Generalized from the teacher's avatar-rendering use of fogleman/gg, with
// golang.org/x/image/draw doing high-quality downscaling when a source
// frame is larger than its tile slot.
func compositeTileSheet(framesDir, dstPath string, cols, rows, tw, th int) error {
	if cols <= 0 {
		cols = 1
	}
	if rows <= 0 {
		rows = 1
	}
	if tw <= 0 {
		tw = 160
	}
	if th <= 0 {
		th = 90
	}

	frames, err := filepath.Glob(filepath.Join(framesDir, "tile_*.jpg"))
	if err != nil {
		return fmt.Errorf("glob frames: %w", err)
	}
	sort.Strings(frames)

	dc := gg.NewContext(cols*tw, rows*th)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	max := cols * rows
	for i, path := range frames {
		if i >= max {
			break
		}
		img, err := loadJPEG(path)
		if err != nil {
			return fmt.Errorf("load frame %s: %w", path, err)
		}
		scaled := resizeTile(img, tw, th)
		col := i % cols
		row := i / cols
		dc.DrawImage(scaled, col*tw, row*th)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}
	return saveJPEG(dc.Image(), dstPath)
}

func saveJPEG(img image.Image, dstPath string) error {
	f, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: 85})
}

func loadJPEG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return jpeg.Decode(f)
}

func resizeTile(src image.Image, w, h int) image.Image {
	if src.Bounds().Dx() == w && src.Bounds().Dy() == h {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
