package assets

import "github.com/spaghettifunk/lumen/engine/renderer/metadata"

type Loader interface {
	// params depends on the loader, e.g. *metadata.ImageResourceParams for images
	Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error)
	Unload(*metadata.Resource) error
}
