package expose

// HealthzResponse is the payload for GET /healthz.
type HealthzResponse struct {
	Status      string `json:"status"`
	TargetCount int    `json:"target_count"`
	Healthy     int    `json:"healthy"`
	Degraded    int    `json:"degraded"`
	Down        int    `json:"down"`
	UptimeSec   int64  `json:"uptime_sec"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
