package main

import (
	"encoding/csv"
	"flag"
	"log"
	"os"
	"strings"

	"blank-slate/internal/config"
	"blank-slate/internal/db"
)

// Seeds the topic and personality catalog from CSV files so a fresh
// deployment has content to start a game with.
func main() {
	topicsPath := flag.String("topics", "topics.csv", "path to topics csv (title,prompt)")
	personalitiesPath := flag.String("personalities", "personalities.csv", "path to personalities csv (title,description,template_prompt)")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}

	conn, err := db.Open(config.Load())
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	topicRows, err := readCSV(*topicsPath, 2)
	if err != nil {
		log.Fatalf("failed to read topics: %v", err)
	}
	for _, row := range topicRows {
		entry := db.Topic{Title: row[0], Prompt: row[1], IsPublic: true}
		if err := conn.FirstOrCreate(&entry, db.Topic{Title: entry.Title, IsPublic: true}).Error; err != nil {
			log.Fatalf("failed to upsert topic: %v", err)
		}
	}
	log.Printf("loaded %d topics", len(topicRows))

	personalityRows, err := readCSV(*personalitiesPath, 3)
	if err != nil {
		log.Fatalf("failed to read personalities: %v", err)
	}
	for _, row := range personalityRows {
		entry := db.Personality{Title: row[0], Description: row[1], TemplatePrompt: row[2]}
		if err := conn.FirstOrCreate(&entry, db.Personality{Title: entry.Title}).Error; err != nil {
			log.Fatalf("failed to upsert personality: %v", err)
		}
	}
	log.Printf("loaded %d personalities", len(personalityRows))
}

// readCSV returns the data rows of a headered CSV, skipping rows with fewer
// than want populated columns.
func readCSV(path string, want int) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var records [][]string
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < want {
			continue
		}
		record := make([]string, want)
		empty := false
		for j := 0; j < want; j++ {
			record[j] = strings.TrimSpace(row[j])
			if record[j] == "" {
				empty = true
			}
		}
		if empty {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
