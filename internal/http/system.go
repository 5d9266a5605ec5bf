package http

import (
	"context"
	"net/http"
	"runtime"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/retroscale/retroscale/internal/queue"
	"github.com/retroscale/retroscale/internal/version"
)

type systemStatusOutput struct {
	Body struct {
		Version    string               `json:"version"`
		Commit     string               `json:"commit"`
		GoVersion  string               `json:"go_version"`
		Goroutines int                  `json:"goroutines"`
		CPUPercent float64              `json:"cpu_percent"`
		Memory     memoryStatus         `json:"memory"`
		Jobs       map[queue.Status]int `json:"jobs"`
	}
}

type memoryStatus struct {
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

func registerSystemRoutes(api huma.API, q *queue.ProcessingQueue) {
	huma.Register(api, huma.Operation{
		OperationID: "system-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/system/status",
		Summary:     "Host and queue status",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*systemStatusOutput, error) {
		out := &systemStatusOutput{}
		out.Body.Version = version.Version
		out.Body.Commit = version.Commit
		out.Body.GoVersion = runtime.Version()
		out.Body.Goroutines = runtime.NumGoroutine()
		out.Body.Jobs = q.Counts()

		// Host metrics are best-effort; a probe failure must not fail the
		// status endpoint.
		if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
			out.Body.CPUPercent = percents[0]
		}
		if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
			out.Body.Memory = memoryStatus{
				TotalBytes:  vm.Total,
				UsedBytes:   vm.Used,
				UsedPercent: vm.UsedPercent,
			}
		}
		return out, nil
	})
}
