package obs

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "identity_build_info",
			Help: "Always 1; labels identify the running identityd build.",
		},
		[]string{"version", "revision", "go_version"},
	)
)

// InitBuildInfo publishes identity_build_info and returns the revision it used.
// An empty revision falls back to the VCS revision stamped by the Go toolchain,
// or "unknown" when the binary carries none.
func InitBuildInfo(version, revision string) string {
	if revision == "" {
		revision = vcsRevision()
	}
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, revision, runtime.Version()).Set(1)
	return revision
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return "unknown"
}
