package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/lingualens/lingualens/internal/appid"
)

// Build metadata; main sets it through SetVersionInfo.
var (
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
)

// SetVersionInfo records build metadata for /version and health responses.
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// VersionResponse is the /version body.
type VersionResponse struct {
	App          AppInfo      `json:"app"`
	Gateway      *GatewayInfo `json:"gateway,omitempty"`
	Dependencies DepInfo      `json:"dependencies"`
	Runtime      RuntimeInfo  `json:"runtime"`
}

type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// GatewayInfo describes what this instance fronts. It is omitted when the
// server runs without the /v1 API.
type GatewayInfo struct {
	Policies        []string `json:"policies"`
	CacheTTLSeconds int      `json:"cache_ttl_seconds"`
	AuthRequired    bool     `json:"auth_required"`
}

type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// NewVersionHandler serves GET /version. api may be nil.
func NewVersionHandler(api *API, authRequired bool) http.HandlerFunc {
	var gateway *GatewayInfo
	if api != nil {
		gateway = &GatewayInfo{AuthRequired: authRequired}
		if api.Registry != nil {
			gateway.Policies = api.Registry.Policies()
		}
		if api.Cache != nil {
			gateway.CacheTTLSeconds = int(api.Cache.TTL().Seconds())
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		deps := crucible.GetVersion()
		writeJSON(w, http.StatusOK, VersionResponse{
			App: AppInfo{
				Name:      appid.Get().BinaryName,
				Version:   AppVersion,
				Commit:    AppCommit,
				BuildDate: AppBuildDate,
				GoVersion: runtime.Version(),
			},
			Gateway:      gateway,
			Dependencies: DepInfo{Gofulmen: deps.Gofulmen, Crucible: deps.Crucible},
			Runtime: RuntimeInfo{
				Platform:      runtime.GOOS + "/" + runtime.GOARCH,
				NumCPU:        runtime.NumCPU(),
				NumGoroutines: runtime.NumGoroutine(),
			},
		})
	}
}
