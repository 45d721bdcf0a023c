package models

import "time"

// Scrape event types consumed from Kafka
const (
	EventScrapeCompleted = "SCRAPE_COMPLETED"
	EventScrapeFailed    = "SCRAPE_FAILED"
)

// Score event types published to Kafka
const (
	EventBatchScored   = "BATCH_SCORED"
	EventBatchFailed   = "BATCH_FAILED"
	EventCompanyScored = "COMPANY_SCORED"
)

// ScrapeEvent is the Kafka message carrying a finished scrape
type ScrapeEvent struct {
	EventType string       `json:"event_type"`
	Source    string       `json:"source"`
	Batch     *ScrapeBatch `json:"batch,omitempty"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// ScoreEvent is the Kafka message published after scoring
type ScoreEvent struct {
	EventType  string           `json:"event_type"`
	RunID      string           `json:"run_id"`
	ScrapeDate time.Time        `json:"scrape_date"`
	Status     string           `json:"status,omitempty"`
	Company    *ScoredCompany   `json:"company,omitempty"`
	Failures   []CompanyFailure `json:"failures,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}
