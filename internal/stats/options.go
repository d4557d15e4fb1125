package stats

// Analysis defaults. Every threshold can be overridden per request or through
// the service configuration; a zero value always means "use the default".
const (
	DefaultTopN                = 5
	DefaultMaxUniqueCalls      = 100
	DefaultSlowThresholdNS     = 1000000
	DefaultHighErrorRate       = 0.10
	DefaultFrequencyWindow     = 20
	DefaultFrequencyThreshold  = 3
	DefaultErrorBurstWindow    = 50
	DefaultErrorBurstThreshold = 5
)

// Options tunes the statistical and anomaly analysis.
type Options struct {
	TopN                int      `json:"top_n,omitempty"`
	MaxUniqueCalls      int      `json:"max_unique_calls,omitempty"`
	SlowThresholdNS     uint64   `json:"slow_threshold_ns,omitempty"`
	HighErrorRate       float64  `json:"high_error_rate,omitempty"`
	FrequencyWindow     int      `json:"frequency_window,omitempty"`
	FrequencyThreshold  int      `json:"frequency_threshold,omitempty"`
	ErrorBurstWindow    int      `json:"error_burst_window,omitempty"`
	ErrorBurstThreshold int      `json:"error_burst_threshold,omitempty"`
	SuspiciousSyscalls  []string `json:"suspicious_syscalls,omitempty"`
}

func (o Options) withDefaults() Options {
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	if o.MaxUniqueCalls <= 0 {
		o.MaxUniqueCalls = DefaultMaxUniqueCalls
	}
	if o.SlowThresholdNS == 0 {
		o.SlowThresholdNS = DefaultSlowThresholdNS
	}
	if o.HighErrorRate <= 0 {
		o.HighErrorRate = DefaultHighErrorRate
	}
	if o.FrequencyWindow <= 0 {
		o.FrequencyWindow = DefaultFrequencyWindow
	}
	if o.FrequencyThreshold <= 0 {
		o.FrequencyThreshold = DefaultFrequencyThreshold
	}
	if o.ErrorBurstWindow <= 0 {
		o.ErrorBurstWindow = DefaultErrorBurstWindow
	}
	if o.ErrorBurstThreshold <= 0 {
		o.ErrorBurstThreshold = DefaultErrorBurstThreshold
	}
	if len(o.SuspiciousSyscalls) == 0 {
		o.SuspiciousSyscalls = watchedSyscalls()
	}
	return o
}
