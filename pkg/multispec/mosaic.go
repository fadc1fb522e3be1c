package multispec

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/cropeye/rig/pkg/camera"
)

// Mosaic tile geometry: 3x2 grid of fixed-size tiles in band order.
const (
	TileWidth  = 640
	TileHeight = 480
)

// Mosaic composites the latest frame of every band into one tiled JPEG.
// Channels without a frame get a labelled placeholder tile. This is a
// presentation convenience on top of the acquisition contract.
func Mosaic(r *Registry, jpegQuality int) ([]byte, error) {
	tiles := make([]gocv.Mat, 0, len(BandOrder))
	defer func() {
		for _, t := range tiles {
			t.Close()
		}
	}()

	for _, band := range BandOrder {
		tiles = append(tiles, renderTile(band, r.Snapshot(band)))
	}

	row1 := gocv.NewMat()
	defer row1.Close()
	row2 := gocv.NewMat()
	defer row2.Close()
	hconcat3(tiles[0], tiles[1], tiles[2], &row1)
	hconcat3(tiles[3], tiles[4], tiles[5], &row2)

	grid := gocv.NewMat()
	defer grid.Close()
	gocv.Vconcat(row1, row2, &grid)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, grid, []int{gocv.IMWriteJpegQuality, jpegQuality})
	if err != nil {
		return nil, fmt.Errorf("encode mosaic: %w", err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

func renderTile(band string, frame *camera.Frame) gocv.Mat {
	if frame == nil {
		return placeholderTile(band)
	}
	src, err := camera.ToMat(*frame)
	if err != nil {
		return placeholderTile(band)
	}
	if src.Channels() == 1 {
		bgr := gocv.NewMat()
		gocv.CvtColor(src, &bgr, gocv.ColorGrayToBGR)
		src.Close()
		src = bgr
	}
	defer src.Close()

	tile := gocv.NewMat()
	gocv.Resize(src, &tile, image.Pt(TileWidth, TileHeight), 0, 0, gocv.InterpolationArea)
	gocv.PutText(&tile, band, image.Pt(15, 35), gocv.FontHersheySimplex, 1.0,
		color.RGBA{G: 255, A: 255}, 2)
	return tile
}

func placeholderTile(band string) gocv.Mat {
	tile := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0),
		TileHeight, TileWidth, gocv.MatTypeCV8UC3)
	gocv.PutText(&tile, band+": no signal", image.Pt(20, TileHeight/2),
		gocv.FontHersheySimplex, 1.0, color.RGBA{R: 255, A: 255}, 2)
	return tile
}

func hconcat3(a, b, c gocv.Mat, dst *gocv.Mat) {
	tmp := gocv.NewMat()
	defer tmp.Close()
	gocv.Hconcat(a, b, &tmp)
	gocv.Hconcat(tmp, c, dst)
}
