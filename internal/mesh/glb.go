package mesh

import (
	"bytes"
	"image"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/basel-ax/stylemesh/internal/codec"
	"github.com/basel-ax/stylemesh/internal/domain"
)

// ExportGLB serialises m as binary glTF. When texture is not nil it is embedded as the base
// colour texture, mapped with a planar projection onto the XY plane.
func ExportGLB(m domain.Mesh, name string, texture image.Image) ([]byte, error) {
	doc := gltf.NewDocument()

	indices := make([]uint32, 0, len(m.Faces)*3)
	for _, f := range m.Faces {
		indices = append(indices, f[0], f[1], f[2])
	}

	attributes := gltf.Attribute{
		gltf.POSITION: modeler.WritePosition(doc, m.Vertices),
	}
	var material *uint32

	if texture != nil {
		uvs := make([][2]float32, len(m.Vertices))
		for i, v := range m.Vertices {
			uvs[i] = [2]float32{v[0] + 0.5, 0.5 - v[1]}
		}
		attributes[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(doc, uvs)

		png, err := codec.EncodePNG(texture)
		if err != nil {
			return nil, err
		}
		img, err := modeler.WriteImage(doc, "texture.png", codec.MimePNG, bytes.NewReader(png))
		if err != nil {
			return nil, errors.Wrap(err, "failed to embed texture")
		}
		doc.Textures = append(doc.Textures, &gltf.Texture{Source: gltf.Index(img)})
		doc.Materials = append(doc.Materials, &gltf.Material{
			Name: name + "_material",
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorTexture: &gltf.TextureInfo{Index: uint32(len(doc.Textures) - 1)},
			},
		})
		material = gltf.Index(uint32(len(doc.Materials) - 1))
	}

	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name: name,
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(modeler.WriteIndices(doc, indices)),
			Attributes: attributes,
			Material:   material,
		}},
	})
	doc.Nodes = append(doc.Nodes, &gltf.Node{Name: name, Mesh: gltf.Index(uint32(len(doc.Meshes) - 1))})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, errors.Wrap(err, "failed to encode glb")
	}
	return buf.Bytes(), nil
}
