package camera

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ToMat wraps a frame's pixel buffer in a Mat. The Mat owns a copy; the
// caller must Close it.
func ToMat(f Frame) (gocv.Mat, error) {
	var matType gocv.MatType
	switch f.Channels {
	case 1:
		matType = gocv.MatTypeCV8UC1
	case 3:
		matType = gocv.MatTypeCV8UC3
	case 4:
		matType = gocv.MatTypeCV8UC4
	default:
		return gocv.Mat{}, fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	if len(f.Data) != f.Width*f.Height*f.Channels {
		return gocv.Mat{}, fmt.Errorf("buffer length %d does not match %dx%dx%d",
			len(f.Data), f.Width, f.Height, f.Channels)
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, matType, f.Data)
}

// EncodeJPEG renders a frame as JPEG at the given quality.
func EncodeJPEG(f Frame, quality int) ([]byte, error) {
	mat, err := ToMat(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// EncodeJPEGFit renders a frame as JPEG, first shrinking it to fit inside
// maxW x maxH while keeping the aspect ratio. Frames already inside the
// box are never upscaled.
func EncodeJPEGFit(f Frame, maxW, maxH, quality int) ([]byte, error) {
	if maxW < 1 || maxH < 1 {
		return EncodeJPEG(f, quality)
	}
	scale := min(float64(maxW)/float64(f.Width), float64(maxH)/float64(f.Height))
	if scale >= 1 {
		return EncodeJPEG(f, quality)
	}
	mat, err := ToMat(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(mat, &small, image.Pt(int(float64(f.Width)*scale), int(float64(f.Height)*scale)), 0, 0, gocv.InterpolationArea)
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, small, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
