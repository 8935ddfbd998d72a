package main

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// imageFormat names an output encoding
type imageFormat string

const (
	formatPNG  imageFormat = "png"
	formatBMP  imageFormat = "bmp"
	formatTIFF imageFormat = "tiff"
)

// resolveFormat returns the explicit format, or the one implied by the file
// extension of out
func resolveFormat(explicit, out string) (imageFormat, error) {
	name := strings.ToLower(explicit)
	if name == "" {
		name = strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
	}
	switch name {
	case "png", "":
		return formatPNG, nil
	case "bmp":
		return formatBMP, nil
	case "tif", "tiff":
		return formatTIFF, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", name)
	}
}

func encodeImage(w io.Writer, format imageFormat, img image.Image) error {
	switch format {
	case formatPNG:
		return png.Encode(w, img)
	case formatBMP:
		return bmp.Encode(w, img)
	case formatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}
}

func writeImage(path string, format imageFormat, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return encodeImage(f, format, img)
}
