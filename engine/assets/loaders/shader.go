package loaders

import (
	"fmt"
	"os"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// ShaderLoader reads a precompiled shader binary (SPIR-V or WGSL source).
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shader binary %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("shader binary %s is empty", path)
	}
	return &metadata.Resource{
		Name:     path,
		FullPath: path,
		Type:     metadata.ResourceTypeShader,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}

func (sl *ShaderLoader) Unload(*metadata.Resource) error {
	return nil
}
