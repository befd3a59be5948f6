package resultclickhouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vncsentinel/pkg/models"
)

// Config configures the ClickHouse HTTP writer.
type Config struct {
	URL      string
	Database string
	Table    string
	Username string
	Password string
	Timeout  time.Duration
	Headers  map[string]string
}

// Writer sends detection records to ClickHouse via HTTP JSONEachRow.
type Writer struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// row is the flattened ClickHouse representation of a detection record.
type row struct {
	RecordID          string   `json:"record_id"`
	SessionID         string   `json:"session_id"`
	ObservedAt        string   `json:"observed_at"`
	RiskLevel         string   `json:"risk_level"`
	ThreatCategories  []string `json:"threat_categories"`
	Explanation       []string `json:"explanation"`
	AnomalyScore      float64  `json:"anomaly_score"`
	RecommendedAction string   `json:"recommended_action"`
	RuleIDs           []string `json:"rule_ids"`
}

// NewWriter creates a ClickHouse HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "vnc_detections"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	q := fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", quoteIdent(cfg.Database), quoteIdent(cfg.Table))
	base := strings.TrimRight(cfg.URL, "/")
	endpoint := base + "/?query=" + url.QueryEscape(q)

	headers := map[string]string{}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Username != "" {
		headers["X-ClickHouse-User"] = cfg.Username
	}
	if cfg.Password != "" {
		headers["X-ClickHouse-Key"] = cfg.Password
	}

	return &Writer{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// WriteResults sends a batch of detection records.
func (w *Writer) WriteResults(records []*models.DetectionRecord) error {
	if len(records) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, record := range records {
		if err := enc.Encode(flatten(record)); err != nil {
			return fmt.Errorf("failed to marshal detection record: %w", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, w.endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("clickhouse request failed with status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close releases resources.
func (w *Writer) Close() error {
	return nil
}

func flatten(record *models.DetectionRecord) row {
	categories := make([]string, 0, len(record.Result.ThreatCategories))
	for _, c := range record.Result.ThreatCategories {
		categories = append(categories, string(c))
	}
	ruleIDs := make([]string, 0, len(record.Result.RuleHits))
	for _, hit := range record.Result.RuleHits {
		ruleIDs = append(ruleIDs, hit.RuleID)
	}
	return row{
		RecordID:          record.RecordID,
		SessionID:         record.SessionID,
		ObservedAt:        record.ObservedAt.UTC().Format("2006-01-02 15:04:05"),
		RiskLevel:         string(record.Result.RiskLevel),
		ThreatCategories:  categories,
		Explanation:       record.Result.Explanation,
		AnomalyScore:      record.Result.AnomalyScore,
		RecommendedAction: string(record.Result.RecommendedAction),
		RuleIDs:           ruleIDs,
	}
}

func quoteIdent(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "`", "")
	return "`" + v + "`"
}
