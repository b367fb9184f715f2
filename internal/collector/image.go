package collector

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // агенты шлют JPEG, но PNG от сторонних клиентов тоже декодируем

	xdraw "golang.org/x/image/draw"
)

// Recompress приводит входную картинку к хранимому формату: вписывает в
// рамку maxW x maxH (только уменьшение, пропорции сохраняются) и кодирует
// в JPEG с заданным качеством. Возвращает байты и итоговые размеры.
func Recompress(data []byte, maxW, maxH, quality int) ([]byte, int, int, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode snapshot image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, 0, 0, fmt.Errorf("snapshot image is empty")
	}

	dstW, dstH := fitWithin(w, h, maxW, maxH)
	out := src
	if dstW != w || dstH != h {
		scaled := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), src, bounds, xdraw.Src, nil)
		out = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode snapshot jpeg: %w", err)
	}
	return buf.Bytes(), dstW, dstH, nil
}

// fitWithin считает размеры «вписывания» в рамку без увеличения оригинала
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if maxW <= 0 || maxH <= 0 {
		return w, h
	}
	if w <= maxW && h <= maxH {
		return w, h
	}

	rw := float64(maxW) / float64(w)
	rh := float64(maxH) / float64(h)
	r := rw
	if rh < rw {
		r = rh
	}

	dstW := int(float64(w) * r)
	dstH := int(float64(h) * r)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	return dstW, dstH
}
