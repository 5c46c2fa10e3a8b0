package shaders

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCullWGSLWorkgroupSize(t *testing.T) {
	src := CullWGSL(64)
	assert.Contains(t, src, "@workgroup_size(64)")
	assert.NotContains(t, src, "{{")
	assert.True(t, strings.Contains(src, "fn "+CullEntryPoint+"("))
}

func TestMeshWGSLEntryPoints(t *testing.T) {
	assert.Contains(t, MeshWGSL, "fn vs_main(")
	assert.Contains(t, MeshWGSL, "fn fs_main(")
}
