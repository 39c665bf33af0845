package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// LogManager wraps the process logger. Call sites build an entry with
// BuildLog and hand it to SendLog.
type LogManager struct {
	logger   *logrus.Logger
	serverID string
	privacy  bool
}

// LogEntry is a fully built log line waiting to be sent.
type LogEntry struct {
	Level   logrus.Level
	Message string
	Fields  logrus.Fields
}

func NewLogManager(serverID string, level logrus.Level, privacy bool) *LogManager {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logger.SetLevel(level)

	return &LogManager{logger: logger, serverID: serverID, privacy: privacy}
}

// BuildLog assembles an entry. Extra args that are errors land in the error
// field; anything else is kept as detail.
func (lm *LogManager) BuildLog(component, message string, level logrus.Level, fields map[string]interface{}, args ...interface{}) LogEntry {
	f := logrus.Fields{
		"component": component,
		"serverID":  lm.serverID,
	}
	for k, v := range fields {
		f[k] = v
	}
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
		case error:
			f[logrus.ErrorKey] = v.Error()
		default:
			f["detail"] = fmt.Sprint(v)
		}
	}
	return LogEntry{Level: level, Message: message, Fields: f}
}

func (lm *LogManager) SendLog(entry LogEntry) {
	lm.logger.WithFields(entry.Fields).Log(entry.Level, entry.Message)
}

// Entry returns a component scoped logrus entry for packages that take a
// *logrus.Entry directly.
func (lm *LogManager) Entry(component string) *logrus.Entry {
	return lm.logger.WithFields(logrus.Fields{
		"component": component,
		"serverID":  lm.serverID,
	})
}

// Content returns message text as it may appear in logs.
func (lm *LogManager) Content(message string) string {
	if lm.privacy {
		return PartiallyRedactMessage(message)
	}
	return message
}

func (lm *LogManager) AddHook(hook logrus.Hook) {
	lm.logger.AddHook(hook)
}

// PartiallyRedactMessage redacts part of the message for privacy.
func PartiallyRedactMessage(message string) string {
	runes := []rune(message)
	if len(runes) <= 10 {
		return "**********"
	}
	return string(runes[:5]) + "*****"
}

// LokiClient pushes log lines to Loki's push API.
type LokiClient struct {
	PushURL  string
	Username string
	Password string
	client   *http.Client
}

type lokiPushData struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

func NewLokiClient(pushURL, username, password string) *LokiClient {
	return &LokiClient{
		PushURL:  pushURL,
		Username: username,
		Password: password,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// PushLog sends one line with the given labels.
func (c *LokiClient) PushLog(labels map[string]string, ts time.Time, line string) error {
	payload := lokiPushData{
		Streams: []lokiStream{{
			Stream: labels,
			Values: [][2]string{{strconv.FormatInt(ts.UnixNano(), 10), line}},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling json: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.PushURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Username != "" && c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request to Loki: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received unexpected response status: %d", resp.StatusCode)
	}
	return nil
}

// LokiHook forwards logrus entries at or above minLevel to Loki.
type LokiHook struct {
	client    *LokiClient
	labels    map[string]string
	minLevel  logrus.Level
	formatter logrus.Formatter
}

func NewLokiHook(client *LokiClient, serverID string, minLevel logrus.Level) *LokiHook {
	return &LokiHook{
		client:    client,
		labels:    map[string]string{"job": "sms-hub", "server": serverID},
		minLevel:  minLevel,
		formatter: &logrus.JSONFormatter{},
	}
}

func (h *LokiHook) Levels() []logrus.Level {
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, l := range logrus.AllLevels {
		if l <= h.minLevel {
			levels = append(levels, l)
		}
	}
	return levels
}

func (h *LokiHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	labels := make(map[string]string, len(h.labels)+1)
	for k, v := range h.labels {
		labels[k] = v
	}
	labels["level"] = entry.Level.String()
	return h.client.PushLog(labels, entry.Time, string(bytes.TrimSpace(line)))
}
