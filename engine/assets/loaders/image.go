package loaders

import (
	"fmt"
	"image"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"neilpa.me/go-stbi"
)

// ImageLoader decodes images with stb_image. Pixels always come back as RGBA8.
type ImageLoader struct{}

func (il *ImageLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	flip := false
	if p, ok := params.(*metadata.ImageResourceParams); ok && p != nil {
		flip = p.FlipY
	}

	img, err := stbi.Load(path)
	if err != nil {
		return nil, fmt.Errorf("stbi failed to load %s: %w", path, err)
	}
	data := rgbaToImageData(img, flip)

	return &metadata.Resource{
		Name:     path,
		FullPath: path,
		Type:     metadata.ResourceTypeImage,
		DataSize: uint64(len(data.Pixels)),
		Data:     data,
	}, nil
}

func (il *ImageLoader) Unload(*metadata.Resource) error {
	return nil
}

// rgbaToImageData copies img into a tightly packed buffer, optionally flipping rows.
func rgbaToImageData(img *image.RGBA, flipY bool) *metadata.ImageResourceData {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	pixels := make([]uint8, w*h*4)
	for y := 0; y < h; y++ {
		srcY := y
		if flipY {
			srcY = h - 1 - y
		}
		src := img.Pix[srcY*img.Stride : srcY*img.Stride+w*4]
		copy(pixels[y*w*4:], src)
	}
	return &metadata.ImageResourceData{
		ChannelCount: 4,
		Width:        uint32(w),
		Height:       uint32(h),
		Pixels:       pixels,
	}
}
