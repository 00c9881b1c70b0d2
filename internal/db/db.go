// Package db keeps an optional history of bridge sessions in SQLite: every
// sensor report sent to the client and every actuator command received from it.
package db

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/codeshield-bridge/internal/httputil"
	"github.com/banshee-data/codeshield-bridge/internal/timeutil"
)

type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// NewDB opens (or creates) the history database at path and brings its schema
// up to date.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenDB opens the database and applies connection pragmas without touching the
// schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// pragmas are per connection
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, path: path, clock: timeutil.RealClock{}}
	if err := db.applyPragmas(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return db, nil
}

func (db *DB) applyPragmas() error {
	_, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = NORMAL;
		PRAGMA temp_store = MEMORY;
		PRAGMA foreign_keys = ON;
	`)
	return err
}

// SetClock replaces the clock used for timestamps.
func (db *DB) SetClock(c timeutil.Clock) { db.clock = c }

func (db *DB) now() float64 {
	return float64(db.clock.Now().UnixNano()) / 1e9
}

// SessionLog records the traffic of one session.
type SessionLog struct {
	db *DB
	ID string
}

// BeginSession inserts a session row and returns its recorder.
func (db *DB) BeginSession(id, device string) (*SessionLog, error) {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, device, started_unix) VALUES (?, ?, ?)`,
		id, device, db.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record session start: %w", err)
	}
	return &SessionLog{db: db, ID: id}, nil
}

// RecordReading stores a sensor report.
func (l *SessionLog) RecordReading(key string, pin, value int) error {
	_, err := l.db.Exec(
		`INSERT INTO readings (session_id, report_key, pin, value, read_unix) VALUES (?, ?, ?, ?, ?)`,
		l.ID, key, pin, value, l.db.now(),
	)
	return err
}

// RecordCommand stores a client command and its integer parameters.
func (l *SessionLog) RecordCommand(method string, params []int) error {
	if params == nil {
		params = []int{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return err
	}
	_, err = l.db.Exec(
		`INSERT INTO commands (session_id, method, params, sent_unix) VALUES (?, ?, ?, ?)`,
		l.ID, method, string(encoded), l.db.now(),
	)
	return err
}

// End marks the session finished.
func (l *SessionLog) End(reason string) error {
	_, err := l.db.Exec(
		`UPDATE sessions SET ended_unix = ?, end_reason = ? WHERE session_id = ?`,
		l.db.now(), reason, l.ID,
	)
	return err
}

type Session struct {
	ID        string     `json:"session_id"`
	Device    string     `json:"device"`
	Started   time.Time  `json:"started"`
	Ended     *time.Time `json:"ended,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

// Sessions returns all sessions, newest first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(`
		SELECT session_id, device, started_unix, ended_unix, COALESCE(end_reason, '')
		FROM sessions
		ORDER BY started_unix DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var started float64
		var ended sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.Device, &started, &ended, &s.EndReason); err != nil {
			return nil, err
		}
		s.Started = unixToTime(started)
		if ended.Valid {
			t := unixToTime(ended.Float64)
			s.Ended = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type Reading struct {
	SessionID string    `json:"session_id"`
	Key       string    `json:"key"`
	Pin       int       `json:"pin"`
	Value     int       `json:"value"`
	Time      time.Time `json:"time"`
}

func (r *Reading) String() string {
	return fmt.Sprintf("%s %s pin=%d value=%d", r.Time.Format(time.RFC3339), r.Key, r.Pin, r.Value)
}

// Readings returns the most recent readings for key, newest first. An empty
// key returns all sensors.
func (db *DB) Readings(key string, limit int) ([]Reading, error) {
	rows, err := db.Query(`
		SELECT session_id, report_key, pin, value, read_unix
		FROM readings
		WHERE ? = '' OR report_key = ?
		ORDER BY read_unix DESC, reading_id DESC
		LIMIT ?
	`, key, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var r Reading
		var ts float64
		if err := rows.Scan(&r.SessionID, &r.Key, &r.Pin, &r.Value, &ts); err != nil {
			return nil, err
		}
		r.Time = unixToTime(ts)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

type Command struct {
	SessionID string    `json:"session_id"`
	Method    string    `json:"method"`
	Params    []int     `json:"params"`
	Time      time.Time `json:"time"`
}

// Commands returns the most recent client commands, newest first.
func (db *DB) Commands(limit int) ([]Command, error) {
	rows, err := db.Query(`
		SELECT session_id, method, params, sent_unix
		FROM commands
		ORDER BY sent_unix DESC, command_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []Command
	for rows.Next() {
		var c Command
		var params string
		var ts float64
		if err := rows.Scan(&c.SessionID, &c.Method, &params, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &c.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params of %s: %w", c.Method, err)
		}
		c.Time = unixToTime(ts)
		commands = append(commands, c)
	}
	return commands, rows.Err()
}

func unixToTime(ts float64) time.Time {
	sec := int64(ts)
	return time.Unix(sec, int64((ts-float64(sec))*1e9)).UTC()
}

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 10000
)

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Bridge history",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("history/sessions", "Recorded client sessions as JSON", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodGet) {
			return
		}
		sessions, err := db.Sessions()
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
			return
		}
		httputil.WriteJSONOK(w, sessions)
	})

	debug.HandleFunc("history/readings", "Recent sensor reports as JSON (?key=potVal&limit=100)", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodGet) {
			return
		}
		limit, err := httputil.QueryInt(r, "limit", defaultHistoryLimit, maxHistoryLimit)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		readings, err := db.Readings(r.URL.Query().Get("key"), limit)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to list readings: %v", err))
			return
		}
		httputil.WriteJSONOK(w, readings)
	})

	debug.HandleFunc("history/commands", "Recent client commands as JSON (?limit=100)", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodGet) {
			return
		}
		limit, err := httputil.QueryInt(r, "limit", defaultHistoryLimit, maxHistoryLimit)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		commands, err := db.Commands(limit)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to list commands: %v", err))
			return
		}
		httputil.WriteJSONOK(w, commands)
	})

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("bridge-backup-%d.db", db.clock.Now().Unix()))
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		// remove the backup once it has been sent
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
		w.Header().Set("Content-Type", "application/gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			log.Printf("Failed to send backup: %v", err)
		}
	}))
}
