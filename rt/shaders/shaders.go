package shaders

import (
	_ "embed"
	"strconv"
	"strings"
)

//go:embed cull.wgsl
var cullWGSL string

//go:embed mesh.wgsl
var MeshWGSL string

// CullEntryPoint is the compute entry point of the cull shader.
const CullEntryPoint = "main"

// CullWGSL returns the cull shader with its workgroup size set.
func CullWGSL(workgroupSize uint32) string {
	return strings.ReplaceAll(cullWGSL, "{{WORKGROUP_SIZE}}", strconv.FormatUint(uint64(workgroupSize), 10))
}
