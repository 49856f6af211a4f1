package metadata

import "strings"

/**
 * @brief Describes how a GPU resource may currently be accessed.
 * Values are bit flags so permanent states can combine read roles.
 */
type ResourceState uint32

const (
	ResourceStateUnknown        ResourceState = 0
	ResourceStateCommon         ResourceState = 0x00000001
	ResourceStateConstantBuffer ResourceState = 0x00000002
	ResourceStateVertexBuffer   ResourceState = 0x00000004
	ResourceStateIndexBuffer    ResourceState = 0x00000008
	ResourceStateShaderResource ResourceState = 0x00000010
	ResourceStateRenderTarget   ResourceState = 0x00000020
	ResourceStateDepthWrite     ResourceState = 0x00000040
	ResourceStateDepthRead      ResourceState = 0x00000080
	ResourceStateCopyDest       ResourceState = 0x00000100
	ResourceStateCopySource     ResourceState = 0x00000200
	ResourceStatePresent        ResourceState = 0x00000400
)

var resourceStateNames = []struct {
	state ResourceState
	name  string
}{
	{ResourceStateCommon, "Common"},
	{ResourceStateConstantBuffer, "ConstantBuffer"},
	{ResourceStateVertexBuffer, "VertexBuffer"},
	{ResourceStateIndexBuffer, "IndexBuffer"},
	{ResourceStateShaderResource, "ShaderResource"},
	{ResourceStateRenderTarget, "RenderTarget"},
	{ResourceStateDepthWrite, "DepthWrite"},
	{ResourceStateDepthRead, "DepthRead"},
	{ResourceStateCopyDest, "CopyDest"},
	{ResourceStateCopySource, "CopySource"},
	{ResourceStatePresent, "Present"},
}

func (s ResourceState) String() string {
	if s == ResourceStateUnknown {
		return "Unknown"
	}
	var parts []string
	for _, n := range resourceStateNames {
		if s&n.state != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

func (s ResourceState) Has(other ResourceState) bool {
	return other != 0 && s&other == other
}

// IsUploadState reports the states a resource sits in before its contents are written.
func (s ResourceState) IsUploadState() bool {
	return s == ResourceStateUnknown || s == ResourceStateCommon || s.Has(ResourceStateCopyDest)
}
