// Package mesh builds and serialises the mesh returned by generate_3d_model.
//
// Mesh reconstruction from the input image is not implemented: UnitCube is a stand-in that
// always yields the same geometry, and the image only ends up as the GLB texture.
package mesh

import "github.com/basel-ax/stylemesh/internal/domain"

// UnitCube returns an axis-aligned cube of edge length 1 centred on the origin.
// Vertex i has coordinates taken from the bits of i (x=4, y=2, z=1); faces wind
// counter-clockwise seen from outside.
func UnitCube() domain.Mesh {
	vertices := make([][3]float32, 8)
	for i := range vertices {
		vertices[i] = [3]float32{
			float32(i>>2&1) - 0.5,
			float32(i>>1&1) - 0.5,
			float32(i&1) - 0.5,
		}
	}
	return domain.Mesh{
		Vertices: vertices,
		Faces: [][3]uint32{
			{0, 1, 3}, {0, 3, 2}, // -x
			{4, 6, 7}, {4, 7, 5}, // +x
			{0, 4, 5}, {0, 5, 1}, // -y
			{2, 3, 7}, {2, 7, 6}, // +y
			{0, 2, 6}, {0, 6, 4}, // -z
			{1, 5, 7}, {1, 7, 3}, // +z
		},
	}
}
