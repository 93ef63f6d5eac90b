package realtime

import (
	"math"
	"sync"
	"time"
)

// ClientConn is the connection surface the hub needs; *Conn satisfies it and
// tests substitute a recorder.
type ClientConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Event is the envelope pushed over the live channel.
type Event struct {
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Position is a contractor's last reported location.
type Position struct {
	Lat float64
	Lng float64
}

type session struct {
	conn   ClientConn
	skills []string
	pos    *Position
}

// Hub maps live connections to contractor identities with their declared
// skills and last known position. It is a queryable cache for targeting, not
// a source of truth: a restart clears it and clients re-register on reconnect.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]*session
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[int64]*session),
	}
}

// Register is called by the connection layer after authentication. A second
// connection for the same contractor replaces the first.
func (h *Hub) Register(contractorID int64, conn ClientConn, skills []string) {
	h.mu.Lock()
	old := h.sessions[contractorID]
	h.sessions[contractorID] = &session{conn: conn, skills: skills}
	h.mu.Unlock()
	if old != nil {
		_ = old.conn.Close()
	}
}

func (h *Hub) Unregister(contractorID int64) {
	h.mu.Lock()
	s, ok := h.sessions[contractorID]
	if ok {
		delete(h.sessions, contractorID)
	}
	h.mu.Unlock()
	if ok {
		_ = s.conn.Close()
	}
}

func (h *Hub) UpdatePosition(contractorID int64, lat, lng float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[contractorID]; ok {
		s.pos = &Position{Lat: lat, Lng: lng}
	}
}

func (h *Hub) UpdateSkills(contractorID int64, skills []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[contractorID]; ok {
		s.skills = skills
	}
}

// ContractorsInLocation returns connected contractors whose last reported
// position is within radiusKm of the point. Contractors with no known
// position never match.
func (h *Hub) ContractorsInLocation(lat, lng, radiusKm float64) []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []int64
	for id, s := range h.sessions {
		if s.pos == nil {
			continue
		}
		if HaversineKm(lat, lng, s.pos.Lat, s.pos.Lng) <= radiusKm {
			out = append(out, id)
		}
	}
	return out
}

// ContractorsWithSkills returns connected contractors whose declared skills
// intersect the given list under the loose matcher.
func (h *Hub) ContractorsWithSkills(skills []string, match func(have, want []string) bool) []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []int64
	for id, s := range h.sessions {
		if match(s.skills, skills) {
			out = append(out, id)
		}
	}
	return out
}

// Skills returns the declared skill set of a connected contractor.
func (h *Hub) Skills(contractorID int64) ([]string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[contractorID]
	if !ok {
		return nil, false
	}
	return s.skills, true
}

// Send pushes one event to a single contractor; returns false when they are
// not connected.
func (h *Hub) Send(contractorID int64, ev Event) (bool, error) {
	h.mu.RLock()
	s, ok := h.sessions[contractorID]
	h.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, s.conn.WriteJSON(ev)
}

// BroadcastAll pushes one event to every live connection, optionally skipping
// a single contractor. Send errors are left to the caller to log.
func (h *Hub) BroadcastAll(ev Event, exclude *int64) []error {
	h.mu.RLock()
	conns := make(map[int64]ClientConn, len(h.sessions))
	for id, s := range h.sessions {
		if exclude != nil && id == *exclude {
			continue
		}
		conns[id] = s.conn
	}
	h.mu.RUnlock()

	var errs []error
	for _, conn := range conns {
		if err := conn.WriteJSON(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Connected reports how many contractors currently hold a live connection.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

const earthRadiusKm = 6371.0

// HaversineKm is the great-circle distance between two points in kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
