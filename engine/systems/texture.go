package systems

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chewxy/math32"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"golang.org/x/sync/errgroup"
)

type TextureSystemConfig struct {
	/** @brief The maximum number of textures that can be registered, the fallback included. */
	MaxTextureCount uint32
	/** @brief How many images are decoded in parallel while a model loads. */
	MaxParallelDecodes int
}

func DefaultTextureSystemConfig() TextureSystemConfig {
	return TextureSystemConfig{
		MaxTextureCount:    32,
		MaxParallelDecodes: 4,
	}
}

// Probed in this order after the name itself.
var textureExtensions = []string{".bmp", ".jpg", ".jpeg", ".tga", ".png"}

type textureEntry struct {
	name     string
	texture  renderer.Texture
	pixels   []uint8
	width    uint32
	height   uint32
	channels uint8
}

/**
 * @brief Registry of material textures addressed by index. Index 0 is
 * always the procedural checkerboard, so a surface whose material could
 * not be resolved still has something to sample.
 */
type TextureSystem struct {
	config   TextureSystemConfig
	device   renderer.Device
	assets   *assets.AssetManager
	textures []textureEntry
	lookup   map[string]int
	lastErr  error
}

// NewTextureSystem creates an empty registry. Call Initialize before use. am may be nil, then only Register adds textures.
func NewTextureSystem(config TextureSystemConfig, device renderer.Device, am *assets.AssetManager) (*TextureSystem, error) {
	if config.MaxTextureCount == 0 {
		err := fmt.Errorf("func NewTextureSystem - config.MaxTextureCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("func NewTextureSystem - %w: device", core.ErrInvalidHandle)
	}
	if config.MaxParallelDecodes <= 0 {
		config.MaxParallelDecodes = 1
	}
	return &TextureSystem{
		config:   config,
		device:   device,
		assets:   am,
		textures: make([]textureEntry, 0, config.MaxTextureCount),
		lookup:   make(map[string]int),
	}, nil
}

// Initialize uploads the fallback texture into slot 0.
func (ts *TextureSystem) Initialize(ctx context.Context) error {
	if len(ts.textures) > 0 {
		return errors.New("texture system already initialized")
	}
	idx, err := ts.Register(ctx, metadata.DEFAULT_TEXTURE_NAME, GenerateCheckerboard(),
		metadata.CHECKERBOARD_DIMENSION, metadata.CHECKERBOARD_DIMENSION, 4)
	if err != nil {
		return fmt.Errorf("failed to create default texture: %w", err)
	}
	if idx != metadata.DEFAULT_TEXTURE_INDEX {
		return fmt.Errorf("default texture landed in slot %d", idx)
	}
	return nil
}

func (ts *TextureSystem) Shutdown() error {
	for _, t := range ts.textures {
		t.texture.Release()
	}
	ts.textures = ts.textures[:0]
	ts.lookup = make(map[string]int)
	return nil
}

/**
 * @brief Generates the 16x16 RGBA fallback texture: light grey grid lines
 * every fourth row and column over a sine coloured background.
 */
func GenerateCheckerboard() []uint8 {
	dim := metadata.CHECKERBOARD_DIMENSION
	pixels := make([]uint8, dim*dim*4)
	for y := uint32(0); y < dim; y++ {
		for x := uint32(0); x < dim; x++ {
			i := (y*dim + x) * 4
			if x%4 == 0 || y%4 == 0 {
				pixels[i+0], pixels[i+1], pixels[i+2] = 240, 240, 240
			} else {
				fx, fy := float32(x), float32(y)
				pixels[i+0] = uint8(50 - 40*math32.Sin(fx/5))
				pixels[i+1] = uint8(60 + 50*math32.Sin(fy/5))
				pixels[i+2] = uint8(50 + 50*math32.Sin((fx+fy)/5))
			}
			pixels[i+3] = 255
		}
	}
	return pixels
}

/**
 * @brief Uploads caller provided pixels under name.
 * @return The new index, or an error when the registry is full, the name
 * is taken or the upload failed.
 */
func (ts *TextureSystem) Register(ctx context.Context, name string, pixels []uint8, width, height uint32, channels uint8) (int, error) {
	if _, ok := ts.lookup[name]; ok {
		return metadata.INVALID_TEXTURE_INDEX, fmt.Errorf("texture %q is already registered", name)
	}
	if uint32(len(ts.textures)) >= ts.config.MaxTextureCount {
		err := fmt.Errorf("cannot register texture %q, all %d slots are used: %w", name, ts.config.MaxTextureCount, core.ErrCapacityExceeded)
		ts.lastErr = err
		core.LogError(err.Error())
		return metadata.INVALID_TEXTURE_INDEX, err
	}
	if channels == 3 {
		pixels = ExpandToRGBA(pixels)
		channels = 4
	}
	texture, err := CreateTextureWithData(ctx, ts.device, pixels, width, height, channels, name)
	if err != nil {
		ts.lastErr = err
		return metadata.INVALID_TEXTURE_INDEX, err
	}
	idx := len(ts.textures)
	ts.textures = append(ts.textures, textureEntry{
		name:     name,
		texture:  texture,
		pixels:   pixels,
		width:    width,
		height:   height,
		channels: channels,
	})
	ts.lookup[name] = idx
	core.LogDebug("registered texture %q in slot %d (%dx%d)", name, idx, width, height)
	return idx, nil
}

// Candidates lists the paths probed for name, in order.
func Candidates(name string) []string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	out := make([]string, 0, len(textureExtensions)+1)
	out = append(out, name)
	for _, ext := range textureExtensions {
		if c := base + ext; c != name {
			out = append(out, c)
		}
	}
	return out
}

// decode returns the first candidate that decodes, or nil when none does.
func (ts *TextureSystem) decode(name string) *metadata.ImageResourceData {
	if ts.assets == nil {
		return nil
	}
	for _, candidate := range Candidates(name) {
		path := ts.assets.Resolve(candidate)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		res, err := ts.assets.LoadAsset(path, metadata.ResourceTypeImage, nil)
		if err != nil {
			core.LogWarn("failed to decode %s: %s", path, err)
			continue
		}
		if data, ok := res.Data.(*metadata.ImageResourceData); ok {
			return data
		}
	}
	return nil
}

/**
 * @brief Resolves a material name to a texture index.
 * @return 0 for an empty name, the existing index for a known name, a new
 * index after a successful load, or -1 when nothing could be loaded or
 * the registry is full.
 */
func (ts *TextureSystem) FindOrCreate(ctx context.Context, name string) int {
	return ts.FindOrCreateAll(ctx, []string{name})[0]
}

/**
 * @brief FindOrCreate for a batch of names. New images are decoded in
 * parallel, registration and upload happen afterwards in input order.
 */
func (ts *TextureSystem) FindOrCreateAll(ctx context.Context, names []string) []int {
	out := make([]int, len(names))
	var missing []string
	seen := make(map[string]struct{})
	for i, name := range names {
		if name == "" {
			out[i] = metadata.DEFAULT_TEXTURE_INDEX
			continue
		}
		if idx, ok := ts.lookup[name]; ok {
			out[i] = idx
			continue
		}
		out[i] = metadata.INVALID_TEXTURE_INDEX
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return out
	}

	decoded := make([]*metadata.ImageResourceData, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ts.config.MaxParallelDecodes)
	for i, name := range missing {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			decoded[i] = ts.decode(name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		ts.lastErr = err
		core.LogWarn("texture decode interrupted: %s", err)
	}

	for i, name := range missing {
		img := decoded[i]
		if img == nil {
			core.LogWarn("could not find texture %q", name)
			continue
		}
		if _, err := ts.Register(ctx, name, img.Pixels, img.Width, img.Height, img.ChannelCount); err != nil {
			core.LogError("failed to register texture %q: %s", name, err)
		}
	}
	for i, name := range names {
		if out[i] != metadata.INVALID_TEXTURE_INDEX {
			continue
		}
		if idx, ok := ts.lookup[name]; ok {
			out[i] = idx
		}
	}
	return out
}

// LastError is the most recent registration failure, nil if there was none.
func (ts *TextureSystem) LastError() error {
	return ts.lastErr
}

func (ts *TextureSystem) Count() int {
	return len(ts.textures)
}

// Index looks a name up without loading it.
func (ts *TextureSystem) Index(name string) (int, bool) {
	idx, ok := ts.lookup[name]
	return idx, ok
}

// Texture returns nil when index is out of range.
func (ts *TextureSystem) Texture(index int) renderer.Texture {
	if index < 0 || index >= len(ts.textures) {
		return nil
	}
	return ts.textures[index].texture
}

func (ts *TextureSystem) DefaultTexture() renderer.Texture {
	return ts.Texture(metadata.DEFAULT_TEXTURE_INDEX)
}

// Pixels returns the CPU copy of the texture data as it was uploaded.
func (ts *TextureSystem) Pixels(index int) []uint8 {
	if index < 0 || index >= len(ts.textures) {
		return nil
	}
	return ts.textures[index].pixels
}

func (ts *TextureSystem) Name(index int) string {
	if index < 0 || index >= len(ts.textures) {
		return ""
	}
	return ts.textures[index].name
}

// Extent reports width, height and channel count of a registered texture.
func (ts *TextureSystem) Extent(index int) (uint32, uint32, uint8) {
	if index < 0 || index >= len(ts.textures) {
		return 0, 0, 0
	}
	t := ts.textures[index]
	return t.width, t.height, t.channels
}
