package testutil

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"os"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func IsNil(t *testing.T, err error, msg string) {
	t.Helper()

	require.NoError(t, err, msg)
}

func Assert(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()

	assert.Equal(t, expected, actual, msg)
}

func ReadFile(t *testing.T, pth string) []byte {
	t.Helper()

	data, err := os.ReadFile(pth)
	require.NoError(t, err, "read %s", pth)

	return data
}

// Image renders a width x height gradient and encodes it in the given format.
func Image(t *testing.T, width, height int, format imaging.Format) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x % 256),
				G: uint8(y % 256),
				B: uint8((x + y) % 256),
				A: 0xff,
			})
		}
	}

	buf := bytes.NewBuffer(nil)
	require.NoError(t, imaging.Encode(buf, img, format), "encode test image")

	return buf.Bytes()
}

// JPEG is Image with the JPEG format.
func JPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	return Image(t, width, height, imaging.JPEG)
}

// RotatedJPEG is JPEG with an EXIF APP1 segment carrying orientation. The
// pixels are stored width x height; viewers applying the tag show them turned.
func RotatedJPEG(t *testing.T, width, height int, orientation uint16) []byte {
	t.Helper()

	raw := JPEG(t, width, height)
	require.True(t, len(raw) > 2 && raw[0] == 0xff && raw[1] == 0xd8, "jpeg starts with SOI")

	exif := bytes.NewBuffer(nil)
	exif.WriteString("Exif\x00\x00")
	exif.WriteString("MM\x00\x2a")
	_ = binary.Write(exif, binary.BigEndian, uint32(8)) // first IFD
	_ = binary.Write(exif, binary.BigEndian, uint16(1)) // one tag
	_ = binary.Write(exif, binary.BigEndian, uint16(0x0112))
	_ = binary.Write(exif, binary.BigEndian, uint16(3)) // SHORT
	_ = binary.Write(exif, binary.BigEndian, uint32(1))
	_ = binary.Write(exif, binary.BigEndian, orientation)
	_ = binary.Write(exif, binary.BigEndian, uint16(0))
	_ = binary.Write(exif, binary.BigEndian, uint32(0)) // no next IFD

	out := bytes.NewBuffer(nil)
	out.Write(raw[:2])
	out.Write([]byte{0xff, 0xe1})
	_ = binary.Write(out, binary.BigEndian, uint16(exif.Len()+2))
	out.Write(exif.Bytes())
	out.Write(raw[2:])

	return out.Bytes()
}
