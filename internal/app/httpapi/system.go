package httpapi

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// systemInfo reports process and host statistics for operators. Individual
// probes that fail are simply omitted from the response.
func (h *handler) systemInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	info := map[string]any{
		"go_version":      runtime.Version(),
		"goroutines":      runtime.NumGoroutine(),
		"events_buffered": h.app.Engine.Events().Count(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil {
			info["process_rss_bytes"] = memInfo.RSS
		}
		if cpuPct, err := proc.CPUPercent(); err == nil {
			info["process_cpu_percent"] = cpuPct
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info["host_memory_used_percent"] = vm.UsedPercent
	}
	if avg, err := load.Avg(); err == nil {
		info["host_load1"] = avg.Load1
	}
	if hostInfo, err := host.Info(); err == nil {
		info["host_os"] = hostInfo.OS
		info["host_uptime_sec"] = hostInfo.Uptime
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *handler) systemAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.audit == nil {
		writeJSON(w, http.StatusOK, []auditEntry{})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be an integer"))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}
