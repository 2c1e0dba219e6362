package domain

// Mesh is a triangle mesh: vertex positions and index triples into them
type Mesh struct {
	Vertices [][3]float32
	Faces    [][3]uint32
}

// MeshConfig is accepted for compatibility with clients; the placeholder exporter only
// echoes it back.
type MeshConfig struct {
	OutputFormats []string `json:"output_formats,omitempty"`
	TextureSize   int      `json:"texture_size,omitempty"`
}

// ModelFile is one exported mesh file
type ModelFile struct {
	Filename   string `json:"filename"`
	Format     string `json:"format"`
	MimeType   string `json:"mime_type"`
	URL        string `json:"url"`
	Data       string `json:"data"`
	Size       int    `json:"size"`
	StorageURL string `json:"storage_url,omitempty"`
}

// ModelOutput is the output payload of generate_3d_model
type ModelOutput struct {
	ModelFiles     []ModelFile `json:"model_files"`
	VertexCount    int         `json:"vertex_count"`
	FaceCount      int         `json:"face_count"`
	Placeholder    bool        `json:"placeholder"`
	Note           string      `json:"note"`
	ConfigUsed     MeshConfig  `json:"config_used"`
	ProcessingTime float64     `json:"processing_time"`
}
