package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"crafture/internal/domain"
)

const (
	svgDefaultSize = 512
	svgMaxSize     = 2048
)

// isSVG sniffs an SVG document: optional XML prolog or comments, then an
// <svg root element near the start of the body.
func isSVG(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimSpace(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")))
	if !bytes.HasPrefix(head, []byte("<")) {
		return false
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

// rasterizeSVG renders an SVG at its intrinsic size, scaled down so the
// longer side fits svgMaxSize.
func rasterizeSVG(data []byte) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("%w: parse svg: %w", domain.ErrDecode, err)
	}
	w, h := icon.ViewBox.W, icon.ViewBox.H
	if w <= 0 || h <= 0 {
		w, h = svgDefaultSize, svgDefaultSize
		icon.ViewBox.W, icon.ViewBox.H = w, h
	}
	if longest := math.Max(w, h); longest > svgMaxSize {
		w, h = w*svgMaxSize/longest, h*svgMaxSize/longest
	}
	width, height := int(math.Ceil(w)), int(math.Ceil(h))

	icon.SetTarget(0, 0, float64(width), float64(height))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1)
	return img, nil
}
