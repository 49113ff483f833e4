package audit

import (
	"database/sql"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/lib/pq"
)

// Access outcomes as stored in the outcome column
const (
	Hit   = `H`
	Miss  = `M`
	Error = `E`
)

// DefaultLimit is the most accesses held between flushes. Beyond it new
// accesses are dropped rather than growing without bound while the database
// is unavailable.
const DefaultLimit = 100000

// Schema creates the table written to by Flush
const Schema = `CREATE TABLE IF NOT EXISTS page_accesses (
    url     text        NOT NULL,
    outcome char(1)     NOT NULL,
    seen    timestamptz NOT NULL,
    ip      inet
)`

// CreateTable ensures the page_accesses table exists
func CreateTable(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Access is a single request for a page
type Access struct {
	URL     string
	Outcome string
	Seen    time.Time
	IP      net.IP
}

// Recorder buffers accesses in memory and writes them to postgres in batches.
// Record never blocks on the database.
type Recorder struct {
	db    *sql.DB
	limit int

	mu       sync.Mutex
	pending  []Access
	dropped  int64
	flushing sync.Mutex
}

// NewRecorder returns a Recorder writing to db. limit <= 0 selects
// DefaultLimit.
func NewRecorder(db *sql.DB, limit int) *Recorder {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Recorder{db: db, limit: limit}
}

// Record appends an access to the buffer
func (r *Recorder) Record(a Access) {
	if a.URL == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) >= r.limit {
		r.dropped++
		return
	}
	r.pending = append(r.pending, a)
}

// take empties the buffer and returns what it held
func (r *Recorder) take() ([]Access, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, dropped := r.pending, r.dropped
	r.pending = nil
	r.dropped = 0
	return batch, dropped
}

// Pending returns how many accesses are waiting to be written
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush writes all buffered accesses in one COPY. It is safe to call
// concurrently; calls are serialised. A failed batch is discarded.
func (r *Recorder) Flush() error {
	r.flushing.Lock()
	defer r.flushing.Unlock()

	batch, dropped := r.take()
	if dropped > 0 {
		glog.Warningf("Dropped %d accesses, buffer was full", dropped)
	}
	if len(batch) == 0 {
		return nil
	}
	if r.db == nil {
		return errors.New("audit: no database connection")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn("page_accesses", "url", "outcome", "seen", "ip"))
	if err != nil {
		return err
	}

	for _, a := range batch {
		var ip interface{}
		if a.IP != nil {
			ip = a.IP.String()
		}
		_, err = stmt.Exec(a.URL, a.Outcome, a.Seen, ip)
		if err != nil {
			stmt.Close()
			return err
		}
	}

	// Flushes the COPY
	_, err = stmt.Exec()
	if err != nil {
		stmt.Close()
		return err
	}
	err = stmt.Close()
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return err
	}

	if glog.V(2) {
		glog.Infof("Recorded %d accesses", len(batch))
	}
	return nil
}

// FlushJob is Flush for the cron table, which has no way to report errors
func (r *Recorder) FlushJob() {
	if err := r.Flush(); err != nil {
		glog.Error(err)
	}
}
