package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"icdlookup/internal"
	"icdlookup/internal/util"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS extractions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  emailId INTEGER NOT NULL,
  lineNo INTEGER NOT NULL,
  source TEXT NOT NULL,
  rawLine TEXT NOT NULL,
  query TEXT NOT NULL,
  parsedJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(emailId, lineNo, source, rawLine),
  FOREIGN KEY(emailId) REFERENCES emails(id)
);

CREATE TABLE IF NOT EXISTS lookups (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  extractionId INTEGER NOT NULL UNIQUE,
  status TEXT NOT NULL,
  reason TEXT NOT NULL,
  totalMatches INTEGER NOT NULL,
  code TEXT,
  shortDescription TEXT,
  longDescription TEXT,
  category TEXT,
  chapter TEXT,
  candidatesJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(extractionId) REFERENCES extractions(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  emailId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);

CREATE TABLE IF NOT EXISTS explanations (
  code TEXT NOT NULL,
  audience TEXT NOT NULL,
  model TEXT NOT NULL,
  text TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(code, audience)
);

CREATE TABLE IF NOT EXISTS dataset_loads (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT NOT NULL,
  modTime TEXT NOT NULL,
  records INTEGER NOT NULL,
  excluded INTEGER NOT NULL,
  columnsJson TEXT NOT NULL,
  durationMs INTEGER NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef`

func scanEmail(scan func(dest ...any) error) (internal.EmailRow, error) {
	var row internal.EmailRow
	err := scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef)
	return row, err
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

// ClearEmailProcessing removes the extractions and lookups of an email so it can be reprocessed.
func (d *DB) ClearEmailProcessing(emailID int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM lookups WHERE extractionId IN (SELECT id FROM extractions WHERE emailId = ?)`, emailID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM extractions WHERE emailId = ?`, emailID); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) InsertExtraction(emailID int, item internal.ExtractionItem) (int64, error) {
	metaJSON, _ := json.Marshal(item.Meta)
	result, err := d.conn.Exec(`
INSERT INTO extractions (emailId, lineNo, source, rawLine, query, parsedJson)
VALUES (?, ?, ?, ?, ?, ?)
`, emailID, item.LineNo, string(item.Source), item.RawLine, item.Query, string(metaJSON))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) InsertLookup(extractionID int64, result internal.LookupResult) error {
	candidatesJSON, _ := json.Marshal(result.Candidates)
	var code, short, long, category, chapter *string
	if rec := result.Record; rec != nil {
		code = util.StringPtr(rec.Code)
		short = util.StringPtr(rec.ShortDescription)
		long = util.StringPtr(rec.LongDescription)
		category = util.StringPtr(rec.Category)
		chapter = util.StringPtr(rec.Chapter)
	}

	_, err := d.conn.Exec(`
INSERT INTO lookups (extractionId, status, reason, totalMatches, code, shortDescription, longDescription, category, chapter, candidatesJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, extractionID, string(result.Status), string(result.Reason), result.TotalMatches, code, short, long, category, chapter, string(candidatesJSON))
	return err
}

func (d *DB) InsertRun(traceID string, emailID int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, emailId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, emailID, string(timingsJSON), string(countsJSON))
	return err
}

// GetExplanation returns the cached explanation text for a code and audience, or nil.
func (d *DB) GetExplanation(code, audience string) (*string, error) {
	var text string
	err := d.conn.QueryRow(`SELECT text FROM explanations WHERE code = ? AND audience = ?`, code, audience).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &text, nil
}

func (d *DB) PutExplanation(code, audience, model, text string) error {
	_, err := d.conn.Exec(`
INSERT INTO explanations (code, audience, model, text) VALUES (?, ?, ?, ?)
ON CONFLICT(code, audience) DO UPDATE SET model = excluded.model, text = excluded.text, createdAt = CURRENT_TIMESTAMP
`, code, audience, model, text)
	return err
}

type DatasetLoad struct {
	Path       string
	ModTime    time.Time
	Records    int
	Excluded   int
	Columns    internal.ColumnMapping
	DurationMs int64
	CreatedAt  string
}

func (d *DB) InsertDatasetLoad(load DatasetLoad) error {
	columnsJSON, _ := json.Marshal(load.Columns)
	_, err := d.conn.Exec(`
INSERT INTO dataset_loads (path, modTime, records, excluded, columnsJson, durationMs)
VALUES (?, ?, ?, ?, ?, ?)
`, load.Path, load.ModTime.UTC().Format(time.RFC3339), load.Records, load.Excluded, string(columnsJSON), load.DurationMs)
	return err
}

// ListDatasetLoads returns the most recent loads first.
func (d *DB) ListDatasetLoads(limit int) ([]DatasetLoad, error) {
	rows, err := d.conn.Query(`
SELECT path, modTime, records, excluded, columnsJson, durationMs, createdAt
FROM dataset_loads ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DatasetLoad
	for rows.Next() {
		var load DatasetLoad
		var modTime, columnsJSON string
		if err := rows.Scan(&load.Path, &modTime, &load.Records, &load.Excluded, &columnsJSON, &load.DurationMs, &load.CreatedAt); err != nil {
			return nil, err
		}
		load.ModTime, _ = time.Parse(time.RFC3339, modTime)
		_ = json.Unmarshal([]byte(columnsJSON), &load.Columns)
		out = append(out, load)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// GetExportRows lists the lookups of an email, resolved first, then review, then not found.
func (d *DB) GetExportRows(emailID int) ([]internal.LookupExportRow, error) {
	rows, err := d.conn.Query(`
SELECT
  e.lineNo,
  e.source,
  e.rawLine,
  e.query,
  l.status,
  l.reason,
  l.totalMatches,
  l.code,
  l.shortDescription,
  l.longDescription,
  l.category,
  l.chapter,
  l.candidatesJson
FROM extractions e
JOIN lookups l ON l.extractionId = e.id
WHERE e.emailId = ?
ORDER BY
  CASE l.status WHEN 'OK' THEN 1 WHEN 'REVIEW' THEN 2 ELSE 3 END,
  e.lineNo ASC
`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.LookupExportRow
	for rows.Next() {
		var row internal.LookupExportRow
		var candidatesJSON string
		if err := rows.Scan(
			&row.InputLineNo,
			&row.Source,
			&row.RawLine,
			&row.Query,
			&row.MatchStatus,
			&row.MatchReason,
			&row.TotalMatches,
			&row.Code,
			&row.ShortDescription,
			&row.LongDescription,
			&row.Category,
			&row.Chapter,
			&candidatesJSON,
		); err != nil {
			return nil, err
		}

		var candidates []internal.MatchCandidate
		_ = json.Unmarshal([]byte(candidatesJSON), &candidates)
		if len(candidates) > 1 {
			row.Candidate2Code = util.StringPtr(candidates[1].Code)
			row.Candidate2Score = util.IntPtr(candidates[1].Score)
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}
