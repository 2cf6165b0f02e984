package imageproc_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentpipe/contentpipe/pkg/contentpipe/imageproc"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTransformResize(t *testing.T) {
	t.Run("width only preserves aspect ratio", func(t *testing.T) {
		source := pngBytes(t, 400, 200)

		result, err := imageproc.Transform(source, imageproc.Options{Width: 100})
		require.NoError(t, err)
		assert.Equal(t, 100, result.Width)
		assert.Equal(t, 50, result.Height)
	})

	t.Run("height only preserves aspect ratio", func(t *testing.T) {
		source := pngBytes(t, 400, 200)

		result, err := imageproc.Transform(source, imageproc.Options{Height: 50})
		require.NoError(t, err)
		assert.Equal(t, 100, result.Width)
		assert.Equal(t, 50, result.Height)
	})

	t.Run("fit keeps aspect ratio within box", func(t *testing.T) {
		source := pngBytes(t, 400, 200)

		result, err := imageproc.Transform(source, imageproc.Options{Width: 100, Height: 100})
		require.NoError(t, err)
		assert.Equal(t, 100, result.Width)
		assert.Equal(t, 50, result.Height)
	})

	t.Run("crop yields exact dimensions", func(t *testing.T) {
		source := pngBytes(t, 400, 200)

		result, err := imageproc.Transform(source, imageproc.Options{Width: 100, Height: 100, Crop: true})
		require.NoError(t, err)
		assert.Equal(t, 100, result.Width)
		assert.Equal(t, 100, result.Height)
	})

	t.Run("never upscales", func(t *testing.T) {
		source := pngBytes(t, 50, 40)

		result, err := imageproc.Transform(source, imageproc.Options{Width: 500})
		require.NoError(t, err)
		assert.Equal(t, 50, result.Width)
		assert.Equal(t, 40, result.Height)
	})

	t.Run("no dimensions leaves size untouched", func(t *testing.T) {
		source := pngBytes(t, 64, 48)

		result, err := imageproc.Transform(source, imageproc.Options{Grayscale: true})
		require.NoError(t, err)
		assert.Equal(t, 64, result.Width)
		assert.Equal(t, 48, result.Height)
	})
}

func TestTransformFormat(t *testing.T) {
	source := pngBytes(t, 32, 32)

	t.Run("defaults to source format", func(t *testing.T) {
		result, err := imageproc.Transform(source, imageproc.Options{Width: 16})
		require.NoError(t, err)
		assert.Equal(t, "png", result.Format)

		_, format, err := image.Decode(bytes.NewReader(result.Data))
		require.NoError(t, err)
		assert.Equal(t, "png", format)
	})

	t.Run("encodes requested format", func(t *testing.T) {
		for _, format := range []string{"png", "jpeg", "gif", "webp"} {
			t.Run(format, func(t *testing.T) {
				result, err := imageproc.Transform(source, imageproc.Options{Format: format})
				require.NoError(t, err)
				assert.Equal(t, format, result.Format)
				assert.NotEmpty(t, result.Data)
			})
		}
	})

	t.Run("jpg is an alias for jpeg", func(t *testing.T) {
		result, err := imageproc.Transform(source, imageproc.Options{Format: "jpg"})
		require.NoError(t, err)

		_, format, err := image.Decode(bytes.NewReader(result.Data))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
	})

	t.Run("unsupported format fails", func(t *testing.T) {
		_, err := imageproc.Transform(source, imageproc.Options{Format: "tiff"})
		assert.Error(t, err)
	})
}

func TestTransformQuality(t *testing.T) {
	source := pngBytes(t, 32, 32)

	result, err := imageproc.Transform(source, imageproc.Options{Format: "jpeg"})
	require.NoError(t, err)
	assert.Equal(t, 80, result.Quality)

	result, err = imageproc.Transform(source, imageproc.Options{Format: "jpeg", Quality: 45})
	require.NoError(t, err)
	assert.Equal(t, 45, result.Quality)
}

func TestTransformRotate(t *testing.T) {
	source := pngBytes(t, 100, 60)

	result, err := imageproc.Transform(source, imageproc.Options{Rotate: 90})
	require.NoError(t, err)
	assert.Equal(t, 60, result.Width)
	assert.Equal(t, 100, result.Height)
}

func TestTransformNonImage(t *testing.T) {
	_, err := imageproc.Transform([]byte("definitely not an image"), imageproc.Options{Width: 100})
	assert.Error(t, err)
}
