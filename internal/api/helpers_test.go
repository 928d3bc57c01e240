package api

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strconv"
)

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func testPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{0, 128, 0, 255})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}
