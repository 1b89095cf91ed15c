package media

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"syscall"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Minimum free space in the work directory before capture starts. A full
// disk mid-run leaves truncated webm clips that ffmpeg rejects much later
// with a far less helpful error.
const minFreeBytes = 2 << 30

// Preflight verifies the external tooling and host resources the pipeline
// depends on. Resource shortfalls below hard limits are errors; soft
// shortfalls are logged and the run proceeds.
func Preflight(log *slog.Logger, workDir string) error {
	for _, binary := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(binary); err != nil {
			return fmt.Errorf("missing required binary: %s", binary)
		}
	}

	if usage, err := disk.Usage(workDir); err == nil {
		if usage.Free < minFreeBytes {
			return fmt.Errorf("insufficient disk space in %s: %d MiB free, need %d MiB",
				workDir, usage.Free>>20, int64(minFreeBytes)>>20)
		}
		log.Debug("disk preflight ok", "free_mib", usage.Free>>20)
	} else {
		log.Warn("disk usage probe failed", "error", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm.Available < 1<<30 {
		log.Warn("low available memory, encodes may swap", "available_mib", vm.Available>>20)
	}

	raiseFileLimit(log)
	return nil
}

// raiseFileLimit lifts the open-file soft limit; the browser plus parallel
// ffmpeg encodes exhaust the usual 1024 default.
func raiseFileLimit(log *slog.Logger) {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		log.Warn("file limit probe failed", "error", err)
		return
	}
	if limit.Cur >= 2048 {
		return
	}
	limit.Cur = 2048
	if limit.Cur > limit.Max {
		limit.Cur = limit.Max
	}
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		log.Warn("file limit raise failed", "error", err)
		return
	}
	log.Debug("open file limit raised", "limit", limit.Cur)
}

// EncodeThreads picks an ffmpeg thread count from the physical core count,
// leaving one core for the browser and recorder.
func EncodeThreads() int {
	count, err := cpu.Counts(false)
	if err != nil || count <= 0 {
		count = runtime.NumCPU()
	}
	if count > 1 {
		count--
	}
	return count
}
