package mesh

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/basel-ax/stylemesh/internal/domain"
)

// ExportOBJ serialises m as a Wavefront OBJ object. OBJ indices are 1-based.
func ExportOBJ(m domain.Mesh, name string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# stylemesh placeholder mesh\n# vertices: %d faces: %d\n", len(m.Vertices), len(m.Faces))
	fmt.Fprintf(&buf, "o %s\n", name)
	for _, v := range m.Vertices {
		fmt.Fprintf(&buf, "v %s %s %s\n", formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]))
	}
	for _, f := range m.Faces {
		fmt.Fprintf(&buf, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1)
	}
	return buf.Bytes()
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}
