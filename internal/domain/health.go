package domain

// AcceleratorInfo describes the GPU found at startup, if any
type AcceleratorInfo struct {
	Available     bool   `json:"gpu_available"`
	Name          string `json:"gpu_name,omitempty"`
	MemoryTotalMB int    `json:"gpu_memory_total_mb,omitempty"`
	DriverVersion string `json:"driver_version,omitempty"`
}

// ModelFlags tells which external models initialised successfully
type ModelFlags struct {
	PoseDetector bool `json:"pose_detector"`
	Diffusion    bool `json:"diffusion"`
	MeshExport   bool `json:"mesh_export"`
}

// HostStats are point-in-time host resource figures
type HostStats struct {
	CPUCount      int     `json:"cpu_count"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
	MemoryUsedPct float64 `json:"memory_used_percent"`
	ProcessRSSMB  uint64  `json:"process_rss_mb"`
}

// HealthReport is the output payload of health_check
type HealthReport struct {
	AcceleratorInfo
	Models ModelFlags `json:"models"`
	Host   *HostStats `json:"host,omitempty"`
}
