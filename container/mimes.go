package container

import "github.com/h2non/filetype/matchers"

var (
	MimeAVIF = TypeAvif.MIME.Value
	MimeWEBP = matchers.TypeWebp.MIME.Value
	MimeGIF  = matchers.TypeGif.MIME.Value
	MimePNG  = matchers.TypePng.MIME.Value
	MimeJPEG = matchers.TypeJpeg.MIME.Value
	MimeZIP  = matchers.TypeZip.MIME.Value
	MimeXML  = "application/xml"
)
