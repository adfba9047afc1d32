// Package monitor is a thin REST client for the Monitor resource that
// the push transport (package push) observes: it creates, looks up and
// deletes Monitors, and hands callers the monId the push.Client needs.
// It is an external collaborator (spec.md §6), not part of the core
// push transport, so it carries a lighter test obligation than package
// push.
package monitor

import (
	"strconv"
	"strings"
	"time"
)

// Format is the wire format the server pushes PublishMessage payloads
// in. It is opaque to the push transport itself (push.Session never
// interprets it); only the Monitor resource and the user's callback
// care about it.
type Format string

// Recognized Monitor formats.
const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// Compression is the Monitor's requested server-side compression.
type Compression string

// Recognized Monitor compression settings.
const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
)

// transportTCP is the only transport type the push client supports; the
// REST resource allows others (the server's concern), but this client
// only ever requests "tcp".
const transportTCP = "tcp"

// Monitor is a server-side subscription resource naming a set of topics
// and delivery parameters, identified by ID (monId).
type Monitor struct {
	ID            string
	Topics        []string
	BatchSize     int
	BatchDuration time.Duration
	Format        Format
	Compression   Compression
}

func (m Monitor) topicString() string {
	return strings.Join(m.Topics, ",")
}

// wireMonitor mirrors the REST resource's field names exactly
// (monTopic, monBatchSize, ...) as described in spec.md §6.
type wireMonitor struct {
	ID              string `json:"monId,omitempty"`
	Topic           string `json:"monTopic"`
	BatchSize       string `json:"monBatchSize"`
	BatchDuration   string `json:"monBatchDuration"`
	FormatType      string `json:"monFormatType"`
	TransportType   string `json:"monTransportType"`
	CompressionType string `json:"monCompression"`
}

func toWire(m Monitor) wireMonitor {
	return wireMonitor{
		ID:              m.ID,
		Topic:           m.topicString(),
		BatchSize:       strconv.Itoa(m.BatchSize),
		BatchDuration:   strconv.Itoa(int(m.BatchDuration / time.Second)),
		FormatType:      string(m.Format),
		TransportType:   transportTCP,
		CompressionType: string(m.Compression),
	}
}

func fromWire(w wireMonitor) (Monitor, error) {
	batchSize, err := strconv.Atoi(w.BatchSize)
	if err != nil {
		batchSize = 0
	}
	batchDuration, err := strconv.Atoi(w.BatchDuration)
	if err != nil {
		batchDuration = 0
	}
	var topics []string
	if w.Topic != "" {
		topics = strings.Split(w.Topic, ",")
	}
	return Monitor{
		ID:            w.ID,
		Topics:        topics,
		BatchSize:     batchSize,
		BatchDuration: time.Duration(batchDuration) * time.Second,
		Format:        Format(w.FormatType),
		Compression:   Compression(w.CompressionType),
	}, nil
}
