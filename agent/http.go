package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"reportixi/crypto"
	"reportixi/metrics"
	"reportixi/models"
	"reportixi/storage"
)

// Handler returns the HTTP surface: health, neighbor state, journal queries and
// prometheus metrics.
func (a *Agent) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.healthz)
	mux.HandleFunc("/info", a.info)
	mux.HandleFunc("/neighbors", a.neighbors)
	mux.HandleFunc("/journal/neighbors", a.journalNeighbors)
	mux.HandleFunc("/journal/security", a.journalSecurity)
	mux.Handle("/metrics", metrics.Handler(a.prom))
	return mux
}

func (a *Agent) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *Agent) info(w http.ResponseWriter, _ *http.Request) {
	type resp struct {
		Version        string           `json:"report_ixi_version"`
		UUID           string           `json:"uuid,omitempty"`
		UUIDKnown      bool             `json:"uuid_known"`
		KeyFingerprint string           `json:"key_fingerprint"`
		ReportAddress  string           `json:"report_address"`
		RCS            string           `json:"rcs"`
		Counters       metrics.Snapshot `json:"counters"`
	}
	uuid, known := a.UUID()
	a.writeJSON(w, resp{
		Version:        ReportIxiVersion,
		UUID:           uuid,
		UUIDKnown:      known,
		KeyFingerprint: crypto.KeyFingerprint(a.opts.Identity.PublicKey()),
		ReportAddress:  a.LocalAddr().String(),
		RCS:            a.opts.RCS.String(),
		Counters:       a.counters.Snapshot(),
	})
}

func (a *Agent) neighbors(w http.ResponseWriter, _ *http.Request) {
	snapshots := a.opts.Registry.Snapshots()
	if snapshots == nil {
		snapshots = []models.NeighborSnapshot{}
	}
	a.writeJSON(w, snapshots)
}

func (a *Agent) journalNeighbors(w http.ResponseWriter, r *http.Request) {
	if a.opts.Journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	limit, offset, err := pageParams(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	changes, err := a.opts.Journal.GetNeighborChanges(storage.NeighborChangeFilter{
		NeighborAddress: q.Get("neighbor"),
		Field:           q.Get("field"),
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.writeJSON(w, changes)
}

func (a *Agent) journalSecurity(w http.ResponseWriter, r *http.Request) {
	if a.opts.Journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	limit, offset, err := pageParams(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events, err := a.opts.Journal.GetSecurityEvents(storage.SecurityEventFilter{
		EventType:     q.Get("type"),
		SourceAddress: q.Get("source"),
		Severity:      q.Get("severity"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.writeJSON(w, events)
}

func (a *Agent) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("encode response", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// pageParams parses the optional limit and offset query parameters. Absent
// values are 0 and take the storage defaults.
func pageParams(q url.Values) (limit, offset int, err error) {
	if limit, err = queryInt(q, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(q, "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func queryInt(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}
