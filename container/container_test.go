package container

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype/matchers"
	"github.com/h2non/filetype/types"
	"github.com/seventv/deepzoom/internal/testutil"
)

type testCase struct {
	Name         string
	Data         []byte
	ExpectedType types.Type
	Decodable    bool
}

func makeZip(t *testing.T) []byte {
	buf := bytes.NewBuffer(nil)
	w := zip.NewWriter(buf)
	f, err := w.Create("0_0_0.jpg")
	testutil.IsNil(t, err, "zip entry created")
	_, err = f.Write([]byte("tile"))
	testutil.IsNil(t, err, "zip entry written")
	testutil.IsNil(t, w.Close(), "zip closed")

	return buf.Bytes()
}

func TestMatch(t *testing.T) {
	t.Parallel()

	avif := []byte{0x00, 0x00, 0x00, 0x1c, 'f', 't', 'y', 'p', 'a', 'v', 'i', 'f', 0x00, 0x00, 0x00, 0x00}

	cases := []testCase{
		{"static.jpeg", testutil.Image(t, 8, 8, imaging.JPEG), matchers.TypeJpeg, true},
		{"static.png", testutil.Image(t, 8, 8, imaging.PNG), matchers.TypePng, true},
		{"static.gif", testutil.Image(t, 8, 8, imaging.GIF), matchers.TypeGif, true},
		{"static.tiff", testutil.Image(t, 8, 8, imaging.TIFF), matchers.TypeTiff, true},
		{"static.bmp", testutil.Image(t, 8, 8, imaging.BMP), matchers.TypeBmp, true},
		{"static.avif", avif, TypeAvif, false},
		{"tiles.zip", makeZip(t), matchers.TypeZip, false},
	}

	for _, c := range cases {
		c := c
		t.Run(c.Name, func(t *testing.T) {
			t.Parallel()

			match := Match(c.Data)
			testutil.Assert(t, c.ExpectedType, match, "image "+c.Name)
			testutil.Assert(t, c.Decodable, Decodable(match), "decodable "+c.Name)
		})
	}
}

func TestMatchUnknown(t *testing.T) {
	t.Parallel()

	testutil.Assert(t, false, Decodable(Match([]byte("not an image"))), "garbage is not decodable")
}
