package container

import (
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/h2non/filetype/types"
)

var TypeAvif = types.NewType("avif", "image/avif")

func init() {
	filetype.AddMatcher(TypeAvif, func(data []byte) bool {
		if len(data) < 12 {
			return false
		}

		return data[0] == 0x00 &&
			data[1] == 0x00 &&
			string(data[4:8]) == "ftyp" &&
			string(data[8:11]) == "avi" &&
			(data[11] == 's' || data[11] == 'f' || data[11] == 'o')
	})
}

func Match(data []byte) types.Type {
	t, _ := filetype.Match(data)

	return t
}

// Decodable reports whether the image engine can load sources of type t.
// AVIF is recognised so it can be rejected with a proper message.
func Decodable(t types.Type) bool {
	switch t {
	case matchers.TypeJpeg,
		matchers.TypePng,
		matchers.TypeGif,
		matchers.TypeWebp,
		matchers.TypeTiff,
		matchers.TypeBmp:
		return true
	}

	return false
}
