// Package imaging holds the frame transforms used by the serving layer:
// color conversion, aspect-preserving resize, crop, JPEG encoding and the
// blank placeholder served when no frame is available yet. Every function
// returns a fresh Mat (or bytes); the caller owns closing both input and
// output.
package imaging

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ToBGR converts an I420 YUV frame (as produced by the capture pipeline)
// into a BGR frame.
func ToBGR(yuv gocv.Mat) gocv.Mat {
	bgr := gocv.NewMat()
	gocv.CvtColor(yuv, &bgr, gocv.ColorYUVToBGRI420)
	return bgr
}

// ResizeToHeight scales src to the target height, deriving the width from
// the source aspect ratio (truncated toward zero). A non-positive target or
// a target equal to the source height returns an unscaled copy. The
// streaming path passes linear interpolation (cheaper per frame); stills
// use area interpolation.
func ResizeToHeight(src gocv.Mat, height int, interp gocv.InterpolationFlags) gocv.Mat {
	if height <= 0 || height == src.Rows() || src.Rows() == 0 {
		return src.Clone()
	}

	width := height * src.Cols() / src.Rows()
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, interp)
	return dst
}

// Crop returns a copy of the given region of src. The region is clamped to
// the frame bounds; an empty intersection yields a copy of the full frame.
func Crop(src gocv.Mat, region image.Rectangle) gocv.Mat {
	bounds := image.Rect(0, 0, src.Cols(), src.Rows())
	region = region.Intersect(bounds)
	if region.Empty() {
		return src.Clone()
	}

	view := src.Region(region)
	defer view.Close()
	return view.Clone()
}

// EncodeJPEG encodes src as JPEG bytes.
func EncodeJPEG(src gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, src)
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// Blank returns a black BGR frame of the given size, used as a placeholder
// when no live frame or snapshot is available yet.
func Blank(width, height int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC3)
}
