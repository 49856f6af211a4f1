package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// TextureLoader decodes png, jpeg and bmp files without cgo.
type TextureLoader struct{}

func (tl *TextureLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	flip := false
	if p, ok := params.(*metadata.ImageResourceParams); ok && p != nil {
		flip = p.FlipY
	}
	data := rgbaToImageData(ToRGBA(img), flip)

	return &metadata.Resource{
		Name:     format,
		FullPath: path,
		Type:     metadata.ResourceTypeImage,
		DataSize: uint64(len(data.Pixels)),
		Data:     data,
	}, nil
}

func (tl *TextureLoader) Unload(*metadata.Resource) error {
	return nil
}

// ToRGBA converts any decoded image to RGBA8 with its origin at 0,0.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

/**
 * @brief Tries each loader in order and returns the first image decoded.
 * The stb loader goes first since it also reads tga.
 */
type ChainLoader struct {
	Loaders []interface {
		Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error)
	}
}

func (cl *ChainLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	var firstErr error
	for _, l := range cl.Loaders {
		res, err := l.Load(path, assetType, params)
		if err == nil {
			return res, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("no image loader configured for %s", path)
	}
	return nil, firstErr
}

func (cl *ChainLoader) Unload(*metadata.Resource) error {
	return nil
}
