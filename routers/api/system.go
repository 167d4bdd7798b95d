package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

var startedAt = time.Now()

// SystemStats reports host resource usage. CPU sampling is instantaneous so
// the handler stays fast.
func SystemStats(c *gin.Context) {
	stats := gin.H{
		"goroutines": runtime.NumGoroutine(),
		"uptime_sec": int(time.Since(startedAt).Seconds()),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats["mem_total"] = vm.Total
		stats["mem_used"] = vm.Used
		stats["mem_percent"] = vm.UsedPercent
	}
	if du, err := disk.Usage("/"); err == nil {
		stats["disk_total"] = du.Total
		stats["disk_used"] = du.Used
		stats["disk_percent"] = du.UsedPercent
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
