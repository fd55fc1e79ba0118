package seed

import (
	"encoding/csv"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// LoadJobs ingests starter job postings from a CSV (title, company, website,
// location, description), skipping rows already present. Missing files are
// not an error so a fresh checkout runs without assets.
func LoadJobs(db *sqlx.DB, csvPath string) {
	if csvPath == "" {
		return
	}
	file, err := os.Open(csvPath)
	if err != nil {
		log.Printf("unable to load job seed %s: %v", csvPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Printf("unable to read job seed header: %v", err)
		return
	}

	tx, err := db.Beginx()
	if err != nil {
		log.Printf("unable to start job seed transaction: %v", err)
		return
	}
	stmt, err := tx.Preparex(`INSERT INTO jobs (title, company, website, location, description, posted_date)
        SELECT ?, ?, ?, ?, ?, ?
        WHERE NOT EXISTS (SELECT 1 FROM jobs WHERE title = ? AND company = ?)`)
	if err != nil {
		log.Printf("unable to prepare job insert: %v", err)
		_ = tx.Rollback()
		return
	}
	defer stmt.Close()

	posted := time.Now().UTC().Format("2006-01-02 15:04:05.000")
	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("unable to read job seed row: %v", err)
			continue
		}
		if len(record) < 5 {
			continue
		}
		title := strings.TrimSpace(record[0])
		company := strings.TrimSpace(record[1])
		website := strings.TrimSpace(record[2])
		location := strings.TrimSpace(record[3])
		description := strings.TrimSpace(record[4])

		if title == "" || company == "" || location == "" || description == "" {
			continue
		}

		var site any
		if website != "" {
			site = website
		}
		if res, err := stmt.Exec(title, company, site, location, description, posted, title, company); err != nil {
			log.Printf("unable to insert job %s: %v", title, err)
		} else if n, _ := res.RowsAffected(); n > 0 {
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("unable to commit job seed: %v", err)
	} else if rows > 0 {
		log.Printf("seeded job board with %d postings", rows)
	}
}
