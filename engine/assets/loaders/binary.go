package loaders

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type BinaryLoader struct{}

// Load reads a file as is. params may be a map carrying a "name" entry.
func (bl *BinaryLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	name := path
	if p, ok := params.(map[string]string); ok && p["name"] != "" {
		name = p["name"]
	}

	return &metadata.Resource{
		Name:     name,
		FullPath: path,
		Type:     metadata.ResourceTypeBinary,
		DataSize: uint64(len(buf)),
		Data:     buf,
	}, nil
}

func (bl *BinaryLoader) Unload(*metadata.Resource) error {
	return nil
}

// BytesToBytecode packs a little endian SPIR-V blob into 32 bit words.
func BytesToBytecode(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("spir-v blob of %d bytes is not a whole number of words", len(b))
	}
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return byteCode, nil
}
