// Package seed populates an empty knowledge base with the demo salon
// data and the default weekly schedule, then builds the vector index.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/bizbot-il/bizbot/hours"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/rag"
	"github.com/bizbot-il/bizbot/store"
)

//go:embed data.yaml
var dataYAML []byte

type Entry struct {
	Category string `yaml:"category"`
	Title    string `yaml:"title"`
	Content  string `yaml:"content"`
}

type seedFile struct {
	Entries []Entry `yaml:"entries"`
}

// Entries parses the embedded demo data.
func Entries() ([]Entry, error) {
	var f seedFile
	if err := yaml.Unmarshal(dataYAML, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	return f.Entries, nil
}

// Run inserts the demo entries when the knowledge base is empty and
// writes the default weekly hours when none are configured, then
// rebuilds the index. Re-running against a seeded database is a no-op
// apart from an index rebuild check.
func Run(ctx context.Context, db *store.Store, index *rag.Manager) error {
	seeded, err := seedKB(db)
	if err != nil {
		return err
	}
	if err := seedHours(db); err != nil {
		return err
	}

	if seeded {
		index.MarkStale()
	}
	if seeded || index.Len() == 0 {
		log.Log.Infof("[Seed] building vector index...")
		if err := index.Rebuild(ctx); err != nil {
			return fmt.Errorf("failed to build index after seeding: %w", err)
		}
	}
	return nil
}

func seedKB(db *store.Store) (bool, error) {
	existing, err := db.CountKBEntries(false)
	if err != nil {
		return false, fmt.Errorf("failed to count kb entries: %w", err)
	}
	if existing > 0 {
		log.Log.Infof("[Seed] knowledge base already has %d entries, skipping", existing)
		return false, nil
	}

	entries, err := Entries()
	if err != nil {
		return false, err
	}

	log.Log.Infof("[Seed] inserting %d knowledge base entries", len(entries))
	for _, e := range entries {
		id, err := db.CreateKBEntry(e.Category, e.Title, e.Content)
		if err != nil {
			return false, fmt.Errorf("failed to seed entry %q: %w", e.Title, err)
		}
		log.Log.Debugf("[Seed] added [%s] %s (id %d)", e.Category, e.Title, id)
	}
	return true, nil
}

// seedHours writes the Sun-Thu 09:00-19:00, Fri 09:00-14:00 default
// week when no schedule exists yet.
func seedHours(db *store.Store) error {
	weekly, err := db.BusinessHours()
	if err != nil {
		return fmt.Errorf("failed to load business hours: %w", err)
	}
	if len(weekly) > 0 {
		return nil
	}

	log.Log.Infof("[Seed] writing default weekly hours")
	for _, h := range hours.DefaultWeeklyHours() {
		if err := db.SetDayHours(h); err != nil {
			return fmt.Errorf("failed to seed hours for day %d: %w", h.Day, err)
		}
	}
	return nil
}
