package thumb

import "image"

// Fit returns the rectangle, in canvas coordinates, that a w×h image occupies
// once scaled to fit inside the canvas without distortion and centered.
//
// The limiting ratio is max(w, h)/CanvasSize: the longer side becomes
// CanvasSize and the shorter side is scaled proportionally, rounded up.
// Images smaller than the canvas are scaled up the same way.
func Fit(w, h int) image.Rectangle {
	if w <= 0 || h <= 0 {
		return image.Rectangle{}
	}

	sw, sh := CanvasSize, CanvasSize
	if w > h {
		sh = ceilDiv(CanvasSize*h, w)
	} else {
		sw = ceilDiv(CanvasSize*w, h)
	}

	x0 := (CanvasSize - sw) / 2
	y0 := (CanvasSize - sh) / 2
	return image.Rect(x0, y0, x0+sw, y0+sh)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
