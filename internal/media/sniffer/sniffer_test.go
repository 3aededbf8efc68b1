package sniffer

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectHead(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want MediaType
		ext  string
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, TypeJPEG, "jpg"},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0}, TypePNG, "png"},
		{"gif", []byte("GIF89a...."), TypeGIF, "gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), TypeWEBP, "webp"},
		{"avif", []byte("\x00\x00\x00\x1cftypavif\x00\x00\x00\x00"), TypeAVIF, "avif"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectHead(tt.head)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.ext, got.Ext())
		})
	}
}

func TestDetectHead_RejectsSVGAndText(t *testing.T) {
	for _, head := range [][]byte{
		[]byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`),
		[]byte("hello"),
		nil,
	} {
		_, err := DetectHead(head)
		require.ErrorIs(t, err, ErrUnknownType)
	}
}

func TestMimeTypeFromHTTP(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "Image/PNG; charset=binary")
	assert.Equal(t, "image/png", MimeTypeFromHTTP(h))
	assert.Equal(t, "", MimeTypeFromHTTP(http.Header{}))
}
