package spool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// Ingester accepts inbound messages. *orchestrator.Orchestrator implements it.
type Ingester interface {
	Ingest(ctx context.Context, msg model.Message) error
}

// Poller is one unit of work the Runner supervises.
type Poller interface {
	Name() string
	Poll(ctx context.Context) (int, error)
}

// Collector ingests message files dropped into one inbox directory.
//
// Files are read in name order. A file is moved to processed/ once the
// orchestrator has accepted it and to failed/ if it cannot be decoded.
// A file whose ingest fails stays put and is retried on the next poll;
// the dedup gate drops it if it had in fact been accepted.
type Collector struct {
	name   string
	dir    string
	in     Ingester
	logger *slog.Logger
}

// NewCollector creates a collector named name reading from dir.
func NewCollector(name, dir string, in Ingester, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		name:   name,
		dir:    dir,
		in:     in,
		logger: logger.With("collector", name),
	}
}

// Name returns the collector name, used as the message source and the
// health record key.
func (c *Collector) Name() string {
	return c.name
}

// Poll ingests every pending file and returns how many were accepted.
func (c *Collector) Poll(ctx context.Context) (int, error) {
	files, err := listFiles(c.dir, ".yaml", ".yml", ".json")
	if err != nil {
		return 0, err
	}

	n := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		msg, err := ReadMessage(path)
		if err != nil {
			c.logger.Warn("unreadable message file", "file", filepath.Base(path), "error", err)
			if err := moveFile(path, filepath.Join(c.dir, "failed")); err != nil {
				return n, err
			}
			continue
		}
		if msg.Source == "" {
			msg.Source = c.name
		}
		if strings.TrimSpace(msg.ID) == "" {
			msg.ID = c.name + ":" + stem(path)
		}

		if err := c.in.Ingest(ctx, msg); err != nil {
			return n, fmt.Errorf("ingest %s: %w", filepath.Base(path), err)
		}
		n++
		if err := moveFile(path, filepath.Join(c.dir, "processed")); err != nil {
			return n, err
		}
		c.logger.Debug("message collected", "message_id", msg.ID, "file", filepath.Base(path))
	}
	return n, nil
}

// ReadMessage decodes a message file. Files ending in .json are JSON;
// anything else is YAML.
func ReadMessage(path string) (model.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Message{}, err
	}
	var msg model.Message
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &msg)
	} else {
		err = yaml.Unmarshal(data, &msg)
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return msg, nil
}
