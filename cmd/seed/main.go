// Command seed wipes the sections tables and reloads them from a nested
// wiki JSON file. Sections are inserted parent before child, with sibling
// positions taken from array order.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"handbook/api/internal/config"
	"handbook/api/internal/content"
	"handbook/api/internal/store"
)

type seedSection struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Summary   string            `json:"summary"`
	AddedAt   string            `json:"addedAt"`
	UpdatedAt string            `json:"updatedAt"`
	Content   []json.RawMessage `json:"content"`
	Children  []seedSection     `json:"children"`
}

type seedFile struct {
	Title    string        `json:"title"`
	Tagline  string        `json:"tagline"`
	Sections []seedSection `json:"sections"`
}

func main() {
	path := flag.String("file", "./wiki-data.json", "path to the wiki data JSON file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()
	ctx := context.Background()

	raw, err := os.ReadFile(*path)
	if err != nil {
		logger.WithError(err).Fatal("could not read seed file")
	}
	var data seedFile
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.WithError(err).Fatal("could not parse seed file")
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.WithError(err).Fatal("migrations failed")
	}

	dataStore := store.NewPostgresStore(db)
	if err := dataStore.DeleteAllSections(ctx); err != nil {
		logger.WithError(err).Fatal("could not clear existing sections")
	}

	count := 0
	for i, section := range data.Sections {
		if err := insertSection(ctx, dataStore, section, nil, i, &count); err != nil {
			logger.WithError(err).WithField("section", section.ID).Fatal("seed insert failed")
		}
	}
	logger.WithField("sections", count).Info("seed complete")
}

func insertSection(ctx context.Context, dataStore *store.PostgresStore, section seedSection, parentID *string, position int, count *int) error {
	blocks, err := content.DecodeBlocks(section.Content)
	if err != nil {
		return err
	}

	row := store.SectionRow{
		ID:        section.ID,
		Title:     section.Title,
		Summary:   section.Summary,
		AddedAt:   parseDate(section.AddedAt),
		UpdatedAt: parseDate(section.UpdatedAt),
		ParentID:  parentID,
		Position:  position,
	}
	if err := dataStore.ImportSection(ctx, row, blocks); err != nil {
		return err
	}
	*count++

	id := section.ID
	for i, child := range section.Children {
		if err := insertSection(ctx, dataStore, child, &id, i, count); err != nil {
			return err
		}
	}
	return nil
}

func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
