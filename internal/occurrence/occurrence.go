package occurrence

import (
	"crypto/md5"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/multios/introspect/internal/stats"
	"github.com/multios/introspect/internal/trace"
)

type (
	EvidenceName string
	IssueTitle   string
	Type         int

	Evidence struct {
		Name      EvidenceName `json:"name"`
		Value     string       `json:"value"`
		Important bool         `json:"important"`
	}

	// Event holds the metadata of the session an anomaly was detected in.
	Event struct {
		ID        string            `json:"event_id"`
		ProcessID uint64            `json:"process_id"`
		Received  time.Time         `json:"received"`
		Tags      map[string]string `json:"tags"`
		Timestamp time.Time         `json:"timestamp"`
	}

	// Occurrence represents a potential issue detected.
	Occurrence struct {
		DetectionTime   time.Time              `json:"detection_time"`
		Event           Event                  `json:"event"`
		EvidenceData    map[string]interface{} `json:"evidence_data,omitempty"`
		EvidenceDisplay []Evidence             `json:"evidence_display,omitempty"`
		Fingerprint     string                 `json:"fingerprint"`
		ID              string                 `json:"id"`
		IssueTitle      IssueTitle             `json:"issue_title"`
		Level           string                 `json:"level,omitempty"`
		Subtitle        string                 `json:"subtitle"`
		Type            Type                   `json:"type"`

		// Only use for stats.
		kind       stats.AnomalyKind
		risk       stats.RiskLevel
		name       string
		durationNS uint64
		count      uint64
	}

	KindMetadata struct {
		IssueTitle IssueTitle
		Type       Type
	}
)

const (
	NoneType              Type = 0
	SuspiciousSyscallType Type = 3001
	SlowSyscallType       Type = 3002
	HighErrorRateType     Type = 3003

	EvidenceNameSyscall   EvidenceName = "Suspect syscall"
	EvidenceNameRisk      EvidenceName = "Risk"
	EvidenceNameCallCount EvidenceName = "Call count"
	EvidenceNameDuration  EvidenceName = "Duration"
	EvidenceNameErrorRate EvidenceName = "Error rate"
	EvidenceNameErrors    EvidenceName = "Failed calls"
)

var (
	IssueTitles = map[stats.AnomalyKind]KindMetadata{
		stats.AnomalySuspiciousSyscall: {IssueTitle: "Suspicious Syscall Activity", Type: SuspiciousSyscallType},
		stats.AnomalySlowSyscall:       {IssueTitle: "Slow Syscall", Type: SlowSyscallType},
		stats.AnomalyHighErrorRate:     {IssueTitle: "High Syscall Error Rate", Type: HighErrorRateType},
	}

	riskLevels = map[stats.RiskLevel]string{
		stats.RiskHigh:   "error",
		stats.RiskMedium: "warning",
		stats.RiskLow:    "info",
	}
)

// NewOccurrence returns an Occurrence struct populated with info.
func NewOccurrence(info trace.Info, a stats.Anomaly) *Occurrence {
	var title IssueTitle
	var issueType Type
	km, exists := IssueTitles[a.Kind]
	if exists {
		issueType = km.Type
		title = km.IssueTitle
	} else {
		issueType = NoneType
		title = IssueTitle(fmt.Sprintf("%v anomaly detected", a.Kind))
	}
	h := md5.New()
	_, _ = io.WriteString(h, strconv.FormatUint(info.ProcessID, 10))
	_, _ = io.WriteString(h, string(title))
	_, _ = io.WriteString(h, strconv.Itoa(int(issueType)))
	_, _ = io.WriteString(h, a.Name)
	fingerprint := fmt.Sprintf("%x", h.Sum(nil))
	detectionTime := time.Now().UTC()
	timestamp := detectionTime
	if info.StoppedAt != nil {
		timestamp = info.StoppedAt.Time()
	}
	level := "info"
	if l, exists := riskLevels[a.Risk]; exists {
		level = l
	}
	var subtitle string
	var evidenceData map[string]interface{}
	var evidenceDisplay []Evidence
	switch a.Kind {
	case stats.AnomalySlowSyscall:
		subtitle = fmt.Sprintf("%s took %s", a.Name, time.Duration(a.DurationNS))
		evidenceData = map[string]interface{}{
			"duration_ns": a.DurationNS,
			"event_id":    a.EventID,
			"syscall":     a.Name,
		}
		evidenceDisplay = []Evidence{
			{
				Name:      EvidenceNameSyscall,
				Value:     a.Name,
				Important: true,
			},
			{
				Name:  EvidenceNameDuration,
				Value: time.Duration(a.DurationNS).String(),
			},
		}
	case stats.AnomalyHighErrorRate:
		subtitle = fmt.Sprintf("%0.2f%% of syscalls failed", a.Rate*100)
		evidenceData = map[string]interface{}{
			"error_count": a.Count,
			"error_rate":  a.Rate,
		}
		evidenceDisplay = []Evidence{
			{
				Name:      EvidenceNameErrorRate,
				Value:     fmt.Sprintf("%0.2f%%", a.Rate*100),
				Important: true,
			},
			{
				Name:  EvidenceNameErrors,
				Value: strconv.FormatUint(a.Count, 10),
			},
		}
	default:
		subtitle = fmt.Sprintf("%s called %d times", a.Name, a.Count)
		evidenceData = map[string]interface{}{
			"call_count": a.Count,
			"risk":       a.Risk,
			"syscall":    a.Name,
		}
		evidenceDisplay = []Evidence{
			{
				Name:      EvidenceNameSyscall,
				Value:     a.Name,
				Important: true,
			},
			{
				Name:  EvidenceNameRisk,
				Value: string(a.Risk),
			},
			{
				Name:  EvidenceNameCallCount,
				Value: strconv.FormatUint(a.Count, 10),
			},
		}
	}
	return &Occurrence{
		DetectionTime: detectionTime,
		Event: Event{
			ID:        info.ID,
			ProcessID: info.ProcessID,
			Received:  info.StartedAt.Time(),
			Tags:      buildOccurrenceTags(info),
			Timestamp: timestamp,
		},
		EvidenceData:    evidenceData,
		EvidenceDisplay: evidenceDisplay,
		Fingerprint:     fingerprint,
		ID:              strings.ReplaceAll(uuid.New().String(), "-", ""),
		IssueTitle:      title,
		Level:           level,
		Subtitle:        subtitle,
		Type:            issueType,
		kind:            a.Kind,
		risk:            a.Risk,
		name:            a.Name,
		durationNS:      a.DurationNS,
		count:           a.Count,
	}
}

func buildOccurrenceTags(info trace.Info) map[string]string {
	tags := map[string]string{
		"process_id": strconv.FormatUint(info.ProcessID, 10),
		"session_id": info.ID,
	}

	if info.Label != "" {
		tags["label"] = info.Label
	}
	if info.StopReason != "" {
		tags["stop_reason"] = string(info.StopReason)
	}

	return tags
}

func (o *Occurrence) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"call_count":  int(o.count),
		"detected_at": o.DetectionTime,
		"duration_ns": int(o.durationNS),
		"kind":        o.kind,
		"process_id":  strconv.FormatUint(o.Event.ProcessID, 10),
		"risk":        o.risk,
		"session_id":  o.Event.ID,
		"syscall":     o.name,
	}, bigquery.NoDedupeID, nil
}
