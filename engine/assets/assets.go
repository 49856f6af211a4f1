package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type AssetInfo struct {
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

/**
 * @brief Resolves and loads files under the assets directory. When
 * watching, changes to known files are queued until the frame loop
 * drains them with PendingReloads.
 */
type AssetManager struct {
	assetsDir string
	assets    map[string]AssetInfo
	loaders   map[metadata.ResourceType]Loader

	mutex   sync.RWMutex
	pending map[string]struct{}

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager(assetsDir string) *AssetManager {
	am := &AssetManager{
		assetsDir: assetsDir,
		assets:    make(map[string]AssetInfo),
		loaders:   make(map[metadata.ResourceType]Loader),
		pending:   make(map[string]struct{}),
	}

	am.registerLoader(metadata.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(metadata.ResourceTypeBinary, &loaders.BinaryLoader{})
	am.registerLoader(metadata.ResourceTypeModel, &loaders.ModelLoader{})
	am.registerLoader(metadata.ResourceTypeImage, &loaders.ChainLoader{
		Loaders: []interface {
			Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error)
		}{&loaders.ImageLoader{}, &loaders.TextureLoader{}},
	})
	return am
}

func (am *AssetManager) AssetsDir() string {
	return am.assetsDir
}

// ShaderPath resolves a shader stage for a backend, e.g. assets/shaders/vulkan/default_main_vs.bin.
func (am *AssetManager) ShaderPath(backend renderer.BackendType, stage string) string {
	return backend.ShaderPath(am.assetsDir, stage)
}

// Resolve makes a path relative to the assets directory absolute. Absolute paths are kept.
func (am *AssetManager) Resolve(name string) string {
	if filepath.IsAbs(name) || am.assetsDir == "" {
		return name
	}
	return filepath.Join(am.assetsDir, name)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// LoadAsset loads path with the loader registered for resourceType.
func (am *AssetManager) LoadAsset(path string, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	loader, ok := am.loaders[resourceType]
	if !ok {
		return nil, fmt.Errorf("no loader registered for asset type: %s", resourceType)
	}
	res, err := loader.Load(path, resourceType, params)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	am.assets[filepath.Clean(path)] = AssetInfo{Path: path, Type: resourceType, LastLoaded: time.Now()}
	am.mutex.Unlock()
	return res, nil
}

func (am *AssetManager) UnloadAsset(asset *metadata.Resource) error {
	if asset == nil {
		return nil
	}
	loader, ok := am.loaders[asset.Type]
	if !ok {
		return nil
	}
	return loader.Unload(asset)
}

// Watch starts the recursive file watcher over the assets directory.
func (am *AssetManager) Watch() error {
	if am.fsnotify != nil {
		return errors.New("asset watcher already running")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	am.fsnotify = w
	am.done = make(chan struct{})
	am.stopped = make(chan struct{})
	if err := am.watchRecursive(am.assetsDir, false); err != nil {
		w.Close()
		am.fsnotify = nil
		return err
	}
	go am.start()
	return nil
}

// PendingReloads drains the files changed since the last call, sorted.
func (am *AssetManager) PendingReloads() []string {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if len(am.pending) == 0 {
		return nil
	}
	out := make([]string, 0, len(am.pending))
	for p := range am.pending {
		out = append(out, p)
	}
	am.pending = make(map[string]struct{})
	sort.Strings(out)
	return out
}

func (am *AssetManager) Shutdown() error {
	if am.fsnotify == nil || am.isClosed {
		return nil
	}
	am.isClosed = true
	close(am.done)
	<-am.stopped
	return nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if unWatch {
			return am.fsnotify.Remove(walkPath)
		}
		return am.fsnotify.Add(walkPath)
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) {
	assetType := DetermineAssetType(path)
	if assetType == metadata.ResourceTypeCustom {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.pending[filepath.Clean(path)] = struct{}{}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, filepath.Clean(path))
	delete(am.pending, filepath.Clean(path))
}

func DetermineAssetType(path string) metadata.ResourceType {
	switch filepath.Ext(path) {
	case ".bin", ".spv", ".wgsl":
		return metadata.ResourceTypeShader
	case ".png", ".jpg", ".jpeg", ".tga", ".bmp":
		return metadata.ResourceTypeImage
	case ".gltf", ".glb":
		return metadata.ResourceTypeModel
	default:
		return metadata.ResourceTypeCustom
	}
}
