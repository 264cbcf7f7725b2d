package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aristath/qfolio/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	databases   map[string]*database.DB
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, dataDir string, databases map[string]*database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		databases:   databases,
	}
}

// DatabaseStatus reports one database's health.
type DatabaseStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string           `json:"status"` // "healthy" or "degraded"
	UptimeSeconds int64            `json:"uptime_seconds"`
	CPUPercent    float64          `json:"cpu_percent"`
	RAMPercent    float64          `json:"ram_percent"`
	Databases     []DatabaseStatus `json:"databases"`
}

// DatabaseStatsEntry holds size statistics for one database.
type DatabaseStatsEntry struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB float64 `json:"data_dir_mb"`
	LogsDirMB float64 `json:"logs_dir_mb"`
	TotalMB   float64 `json:"total_mb"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	status := "healthy"
	statuses := make([]DatabaseStatus, 0, len(h.databases))
	for _, name := range h.sortedDatabaseNames() {
		db := h.databases[name]
		entry := DatabaseStatus{Name: name, Healthy: true}
		if err := db.QuickCheck(r.Context()); err != nil {
			entry.Healthy = false
			entry.Error = err.Error()
			status = "degraded"
		}
		statuses = append(statuses, entry)
	}

	h.writeJSON(w, SystemStatusResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		Databases:     statuses,
	})
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	entries := make([]DatabaseStatsEntry, 0, len(h.databases))
	for _, name := range h.sortedDatabaseNames() {
		db := h.databases[name]
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			continue
		}
		entries = append(entries, DatabaseStatsEntry{
			Name:      name,
			Path:      db.Path(),
			SizeMB:    float64(stats.SizeBytes) / 1024.0 / 1024.0,
			WALSizeMB: float64(stats.WALSizeBytes) / 1024.0 / 1024.0,
			PageCount: stats.PageCount,
		})
	}

	h.writeJSON(w, map[string]interface{}{"databases": entries})
}

// HandleDiskUsage handles GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	dataDirSize := h.getDirSize(h.dataDir)
	logsDirSize := h.getDirSize(filepath.Join(h.dataDir, "logs"))

	h.writeJSON(w, DiskUsageResponse{
		DataDirMB: dataDirSize,
		LogsDirMB: logsDirSize,
		TotalMB:   dataDirSize + logsDirSize,
	})
}

// getSystemStats calculates CPU and RAM usage percentages.
// The 100ms CPU sample keeps the endpoint responsive for pollers.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	avg := 0.0
	if len(cpuPercent) > 0 {
		avg = cpuPercent[0]
	}
	return avg, memStat.UsedPercent
}

// getDirSize returns a directory size in megabytes. Missing directories
// count as zero.
func (h *SystemHandlers) getDirSize(dir string) float64 {
	var total int64
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return float64(total) / 1024.0 / 1024.0
}

func (h *SystemHandlers) sortedDatabaseNames() []string {
	names := make([]string, 0, len(h.databases))
	for name := range h.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
