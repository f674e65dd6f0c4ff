package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-process Store. Transactions are serialized and applied
// copy-on-write, so a failed transaction leaves no trace. fn passed to InTx
// must only use the Tx it receives.
type MemStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

type memState struct {
	nextID       int64
	centers      map[int64]Center
	templates    map[int64]SessionTemplate
	beds         map[int64]Bed
	sessions     map[int64]ScheduledSession
	appointments map[int64]Appointment
}

func NewMemStore() *MemStore {
	return &MemStore{
		state: &memState{
			centers:      make(map[int64]Center),
			templates:    make(map[int64]SessionTemplate),
			beds:         make(map[int64]Bed),
			sessions:     make(map[int64]ScheduledSession),
			appointments: make(map[int64]Appointment),
		},
		now: time.Now,
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		nextID:       st.nextID,
		centers:      make(map[int64]Center, len(st.centers)),
		templates:    make(map[int64]SessionTemplate, len(st.templates)),
		beds:         make(map[int64]Bed, len(st.beds)),
		sessions:     make(map[int64]ScheduledSession, len(st.sessions)),
		appointments: make(map[int64]Appointment, len(st.appointments)),
	}
	for k, v := range st.centers {
		c.centers[k] = v
	}
	for k, v := range st.templates {
		c.templates[k] = v
	}
	for k, v := range st.beds {
		c.beds[k] = v
	}
	for k, v := range st.sessions {
		c.sessions[k] = v
	}
	for k, v := range st.appointments {
		c.appointments[k] = v
	}
	return c
}

func (st *memState) id() int64 {
	st.nextID++
	return st.nextID
}

func (m *MemStore) CreateCenter(_ context.Context, c *Center) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.ID = m.state.id()
	c.CreatedAt = m.now()
	m.state.centers[c.ID] = *c
	return nil
}

func (m *MemStore) GetCenter(_ context.Context, id int64) (*Center, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.state.centers[id]
	if !ok {
		return nil, ErrCenterNotFound
	}
	return &c, nil
}

func (m *MemStore) ListCenterIDs(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.state.centers))
	for id := range m.state.centers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MemStore) CreateTemplates(_ context.Context, ts []SessionTemplate) ([]SessionTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range ts {
		if _, ok := m.state.centers[t.CenterID]; !ok {
			return nil, ErrCenterNotFound
		}
	}

	out := make([]SessionTemplate, 0, len(ts))
	for _, t := range ts {
		t.ID = m.state.id()
		t.CreatedAt = m.now()
		m.state.templates[t.ID] = t
		out = append(out, t)
	}
	return out, nil
}

func (m *MemStore) GetTemplate(_ context.Context, id int64) (*SessionTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.state.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return &t, nil
}

func (m *MemStore) ListTemplates(_ context.Context, centerID int64, activeOnly bool) ([]SessionTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []SessionTemplate
	for _, t := range m.state.templates {
		if t.CenterID != centerID {
			continue
		}
		if activeOnly && t.Status != TemplateActive {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) SetTemplateStatus(_ context.Context, id int64, status TemplateStatus) (*SessionTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.state.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	t.Status = status
	m.state.templates[id] = t
	return &t, nil
}

func (m *MemStore) CreateBed(_ context.Context, b *Bed) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.centers[b.CenterID]; !ok {
		return ErrCenterNotFound
	}
	for _, existing := range m.state.beds {
		if existing.CenterID == b.CenterID && existing.Code == b.Code {
			return ErrDuplicateBedCode
		}
	}

	b.ID = m.state.id()
	b.CreatedAt = m.now()
	m.state.beds[b.ID] = *b
	return nil
}

func (m *MemStore) ListBeds(_ context.Context, centerID int64) ([]Bed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return bedsOf(m.state, centerID, false), nil
}

func (m *MemStore) SetBedStatus(_ context.Context, id int64, status BedStatus) (*Bed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.state.beds[id]
	if !ok {
		return nil, ErrBedNotFound
	}
	b.Status = status
	m.state.beds[id] = b
	return &b, nil
}

func (m *MemStore) CountActiveBeds(_ context.Context, centerID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(bedsOf(m.state, centerID, true)), nil
}

func bedsOf(st *memState, centerID int64, activeOnly bool) []Bed {
	var out []Bed
	for _, b := range st.beds {
		if b.CenterID != centerID {
			continue
		}
		if activeOnly && b.Status != BedActive {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemStore) InsertSession(_ context.Context, s *ScheduledSession) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.centers[s.CenterID]; !ok {
		return false, ErrCenterNotFound
	}

	if s.TemplateID != nil {
		for _, existing := range m.state.sessions {
			if existing.TemplateID == nil || existing.Status == SessionCancelled {
				continue
			}
			if existing.CenterID == s.CenterID && *existing.TemplateID == *s.TemplateID && existing.Date.Equal(s.Date) {
				return false, nil
			}
		}
	}

	s.ID = m.state.id()
	s.CreatedAt = m.now()
	m.state.sessions[s.ID] = *s
	return true, nil
}

func (m *MemStore) RefreshEmptySession(_ context.Context, s *ScheduledSession) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.TemplateID == nil {
		return false, nil
	}
	for id, existing := range m.state.sessions {
		if existing.TemplateID == nil || existing.CenterID != s.CenterID ||
			*existing.TemplateID != *s.TemplateID || !existing.Date.Equal(s.Date) {
			continue
		}
		if existing.Status != SessionScheduled || existing.Capacity != 0 {
			continue
		}
		for _, a := range m.state.appointments {
			if a.ScheduledSessionID == id {
				return false, nil
			}
		}

		now := m.now()
		existing.Capacity = s.Capacity
		existing.AvailableBeds = s.Capacity
		existing.UpdatedAt = &now
		m.state.sessions[id] = existing
		*s = existing
		return true, nil
	}
	return false, nil
}

func (m *MemStore) GetSession(_ context.Context, id int64) (*ScheduledSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.state.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemStore) ListSessions(_ context.Context, centerID int64, from, to time.Time) ([]ScheduledSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ScheduledSession
	for _, s := range m.state.sessions {
		if s.CenterID != centerID || s.Date.Before(from) || s.Date.After(to) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) GetAppointment(_ context.Context, id int64) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.state.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemStore) ListAppointmentsBySession(_ context.Context, sessionID int64) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.state.appointments {
		if a.ScheduledSessionID == sessionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) ListAppointmentsByPatient(_ context.Context, patientID int64, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.state.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, &memTx{st: work, now: m.now}); err != nil {
		return err
	}
	m.state = work
	return nil
}

type memTx struct {
	st  *memState
	now func() time.Time
}

func (t *memTx) LockSession(_ context.Context, id int64) (*ScheduledSession, error) {
	s, ok := t.st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (t *memTx) LockAppointment(_ context.Context, id int64) (*Appointment, error) {
	a, ok := t.st.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (t *memTx) FindActiveAppointment(_ context.Context, sessionID, patientID int64) (*Appointment, error) {
	for _, a := range t.st.appointments {
		if a.ScheduledSessionID == sessionID && a.PatientID == patientID && a.Status.Active() {
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (t *memTx) ListActiveAppointments(_ context.Context, sessionID int64) ([]Appointment, error) {
	var out []Appointment
	for _, a := range t.st.appointments {
		if a.ScheduledSessionID == sessionID && a.Status.Active() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) GetBed(_ context.Context, id int64) (*Bed, error) {
	b, ok := t.st.beds[id]
	if !ok {
		return nil, ErrBedNotFound
	}
	return &b, nil
}

func (t *memTx) ListActiveBeds(_ context.Context, centerID int64) ([]Bed, error) {
	return bedsOf(t.st, centerID, true), nil
}

func (t *memTx) OccupiedBedIDs(_ context.Context, s *ScheduledSession, excludeAppointmentID int64) (map[int64]bool, error) {
	occupied := make(map[int64]bool)
	for _, a := range t.st.appointments {
		if a.ID == excludeAppointmentID || a.BedID == nil || !a.Status.Active() {
			continue
		}
		other, ok := t.st.sessions[a.ScheduledSessionID]
		if !ok || other.Status == SessionCancelled {
			continue
		}
		if other.Overlaps(*s) {
			occupied[*a.BedID] = true
		}
	}
	return occupied, nil
}

func (t *memTx) AdjustAvailableBeds(_ context.Context, sessionID int64, delta int) (int, error) {
	s, ok := t.st.sessions[sessionID]
	if !ok {
		return 0, ErrSessionNotFound
	}
	n := s.AvailableBeds + delta
	if n < 0 {
		return s.AvailableBeds, ErrExhausted
	}
	if n > s.Capacity {
		n = s.Capacity
	}
	now := t.now()
	s.AvailableBeds = n
	s.UpdatedAt = &now
	t.st.sessions[sessionID] = s
	return n, nil
}

func (t *memTx) UpdateSessionStatus(_ context.Context, id int64, status SessionStatus) error {
	s, ok := t.st.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	now := t.now()
	s.Status = status
	s.UpdatedAt = &now
	t.st.sessions[id] = s
	return nil
}

func (t *memTx) InsertAppointment(_ context.Context, a *Appointment) error {
	if _, ok := t.st.sessions[a.ScheduledSessionID]; !ok {
		return ErrSessionNotFound
	}
	a.ID = t.st.id()
	a.CreatedAt = t.now()
	a.UpdatedAt = a.CreatedAt
	t.st.appointments[a.ID] = *a
	return nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a *Appointment) error {
	if _, ok := t.st.appointments[a.ID]; !ok {
		return ErrAppointmentNotFound
	}
	a.UpdatedAt = t.now()
	t.st.appointments[a.ID] = *a
	return nil
}
