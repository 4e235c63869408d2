// Package storetest содержит хранилища в памяти с контрактом пакета repo.
//
// Используется в тестах execution, api и sweeper вместо PostgreSQL:
// ошибки совпадают с repo (ErrNotFound, ErrAlreadyExists, ...).
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/domain"
	"github.com/shaiso/ModuleTrack/internal/repo"
)

// Store — общее состояние всех хранилищ.
type Store struct {
	mu       sync.Mutex
	configs  map[uuid.UUID]*domain.TestConfig
	pcbTypes map[uuid.UUID]*domain.PCBType
	batches  map[uuid.UUID]*domain.Batch
	pcbs     map[uuid.UUID]*domain.PCB
	sessions map[uuid.UUID]*domain.Session
	signoffs map[uuid.UUID]*domain.QASignoff
	results  []domain.StepResult
	events   []domain.AuditEvent
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		configs:  make(map[uuid.UUID]*domain.TestConfig),
		pcbTypes: make(map[uuid.UUID]*domain.PCBType),
		batches:  make(map[uuid.UUID]*domain.Batch),
		pcbs:     make(map[uuid.UUID]*domain.PCB),
		sessions: make(map[uuid.UUID]*domain.Session),
		signoffs: make(map[uuid.UUID]*domain.QASignoff),
	}
}

// Configs возвращает хранилище процедур.
func (s *Store) Configs() *ConfigStore { return &ConfigStore{s} }

// PCBTypes возвращает хранилище типов плат.
func (s *Store) PCBTypes() *PCBTypeStore { return &PCBTypeStore{s} }

// Units возвращает хранилище партий и плат.
func (s *Store) Units() *UnitStore { return &UnitStore{s} }

// Sessions возвращает хранилище сессий и подписей.
func (s *Store) Sessions() *SessionStore { return &SessionStore{s} }

// Results возвращает хранилище результатов.
func (s *Store) Results() *ResultStore { return &ResultStore{s} }

// Audit возвращает журнал аудита.
func (s *Store) Audit() *AuditStore { return &AuditStore{s} }

// SessionCount возвращает число сессий.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ResultCount возвращает число результатов во всех сессиях.
func (s *Store) ResultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// --- Test configs ---

// ConfigStore — процедуры в памяти.
type ConfigStore struct{ s *Store }

func copyConfig(cfg *domain.TestConfig) *domain.TestConfig {
	cp := *cfg
	cp.Steps = append([]domain.Step(nil), cfg.Steps...)
	return &cp
}

// Create создаёт процедуру; шаги получают новые ID.
func (c *ConfigStore) Create(_ context.Context, cfg *domain.TestConfig) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	for _, other := range c.s.configs {
		if strings.EqualFold(other.Name, cfg.Name) {
			return repo.ErrAlreadyExists
		}
	}

	now := time.Now().UTC()
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	cfg.CreatedAt, cfg.UpdatedAt = now, now
	for i := range cfg.Steps {
		cfg.Steps[i].ID = uuid.New()
		cfg.Steps[i].TestConfigID = cfg.ID
		cfg.Steps[i].CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
	}
	c.s.configs[cfg.ID] = copyConfig(cfg)
	return nil
}

// GetByID возвращает процедуру по ID.
func (c *ConfigStore) GetByID(_ context.Context, id uuid.UUID) (*domain.TestConfig, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	cfg, ok := c.s.configs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return copyConfig(cfg), nil
}

// GetByName возвращает процедуру по имени без учёта регистра.
func (c *ConfigStore) GetByName(_ context.Context, name string) (*domain.TestConfig, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	for _, cfg := range c.s.configs {
		if strings.EqualFold(cfg.Name, name) {
			return copyConfig(cfg), nil
		}
	}
	return nil, repo.ErrNotFound
}

// List возвращает процедуры по имени.
func (c *ConfigStore) List(_ context.Context) ([]domain.TestConfig, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	out := make([]domain.TestConfig, 0, len(c.s.configs))
	for _, cfg := range c.s.configs {
		out = append(out, *copyConfig(cfg))
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Update заменяет процедуру, сохраняя ID существующих шагов.
func (c *ConfigStore) Update(_ context.Context, cfg *domain.TestConfig) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	old, ok := c.s.configs[cfg.ID]
	if !ok {
		return repo.ErrNotFound
	}
	for id, other := range c.s.configs {
		if id != cfg.ID && strings.EqualFold(other.Name, cfg.Name) {
			return repo.ErrAlreadyExists
		}
	}

	now := time.Now().UTC()
	kept := make(map[uuid.UUID]bool)
	for i := range cfg.Steps {
		step := &cfg.Steps[i]
		step.TestConfigID = cfg.ID
		if prev, ok := old.Step(step.ID); ok {
			step.CreatedAt = prev.CreatedAt
		} else {
			step.ID = uuid.New()
			step.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
		kept[step.ID] = true
	}

	// Результаты удалённых шагов теряют ссылку
	for i := range c.s.results {
		if _, wasStep := old.Step(c.s.results[i].StepID); wasStep && !kept[c.s.results[i].StepID] {
			c.s.results[i].StepID = uuid.Nil
		}
	}

	cfg.CreatedAt = old.CreatedAt
	cfg.UpdatedAt = now
	c.s.configs[cfg.ID] = copyConfig(cfg)
	return nil
}

// UpdateStepOrders сохраняет позиции шагов.
func (c *ConfigStore) UpdateStepOrders(_ context.Context, cfg *domain.TestConfig) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	stored, ok := c.s.configs[cfg.ID]
	if !ok {
		return repo.ErrNotFound
	}
	for _, step := range cfg.Steps {
		target, ok := stored.Step(step.ID)
		if !ok {
			return repo.ErrNotFound
		}
		target.Order = step.Order
	}
	return nil
}

// Delete удаляет процедуру.
func (c *ConfigStore) Delete(_ context.Context, id uuid.UUID) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if _, ok := c.s.configs[id]; !ok {
		return repo.ErrNotFound
	}
	delete(c.s.configs, id)
	return nil
}

// --- PCB types ---

// PCBTypeStore — типы плат в памяти.
type PCBTypeStore struct{ s *Store }

// Create создаёт тип платы.
func (p *PCBTypeStore) Create(_ context.Context, t *domain.PCBType) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	for _, other := range p.s.pcbTypes {
		if strings.EqualFold(other.Name, t.Name) {
			return repo.ErrAlreadyExists
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	p.s.pcbTypes[t.ID] = &cp
	return nil
}

// GetByID возвращает тип платы.
func (p *PCBTypeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.PCBType, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	t, ok := p.s.pcbTypes[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// List возвращает типы плат по имени.
func (p *PCBTypeStore) List(_ context.Context) ([]domain.PCBType, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	out := make([]domain.PCBType, 0, len(p.s.pcbTypes))
	for _, t := range p.s.pcbTypes {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Update обновляет тип платы.
func (p *PCBTypeStore) Update(_ context.Context, t *domain.PCBType) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if _, ok := p.s.pcbTypes[t.ID]; !ok {
		return repo.ErrNotFound
	}
	for id, other := range p.s.pcbTypes {
		if id != t.ID && strings.EqualFold(other.Name, t.Name) {
			return repo.ErrAlreadyExists
		}
	}
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	p.s.pcbTypes[t.ID] = &cp
	return nil
}

// Delete удаляет тип платы.
func (p *PCBTypeStore) Delete(_ context.Context, id uuid.UUID) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if _, ok := p.s.pcbTypes[id]; !ok {
		return repo.ErrNotFound
	}
	delete(p.s.pcbTypes, id)
	return nil
}

// --- Batches and PCBs ---

// UnitStore — партии и платы в памяти.
type UnitStore struct{ s *Store }

// CreateBatch создаёт партию.
func (u *UnitStore) CreateBatch(_ context.Context, b *domain.Batch) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	for _, other := range u.s.batches {
		if strings.EqualFold(other.Name, b.Name) {
			return repo.ErrAlreadyExists
		}
	}
	if b.TestConfigID != uuid.Nil {
		if _, ok := u.s.configs[b.TestConfigID]; !ok {
			return repo.ErrInvalidReference
		}
	}
	if b.PCBTypeID != uuid.Nil {
		if _, ok := u.s.pcbTypes[b.PCBTypeID]; !ok {
			return repo.ErrInvalidReference
		}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	u.s.batches[b.ID] = &cp
	return nil
}

// GetBatch возвращает партию.
func (u *UnitStore) GetBatch(_ context.Context, id uuid.UUID) (*domain.Batch, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	b, ok := u.s.batches[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// ListBatches возвращает партии по имени.
func (u *UnitStore) ListBatches(_ context.Context, pcbTypeID *uuid.UUID) ([]domain.Batch, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	var out []domain.Batch
	for _, b := range u.s.batches {
		if pcbTypeID != nil && *pcbTypeID != uuid.Nil && b.PCBTypeID != *pcbTypeID {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateBatch обновляет партию.
func (u *UnitStore) UpdateBatch(_ context.Context, b *domain.Batch) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.batches[b.ID]; !ok {
		return repo.ErrNotFound
	}
	for id, other := range u.s.batches {
		if id != b.ID && strings.EqualFold(other.Name, b.Name) {
			return repo.ErrAlreadyExists
		}
	}
	b.UpdatedAt = time.Now().UTC()
	cp := *b
	u.s.batches[b.ID] = &cp
	return nil
}

// DeleteBatch удаляет партию и её платы.
func (u *UnitStore) DeleteBatch(_ context.Context, id uuid.UUID) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.batches[id]; !ok {
		return repo.ErrNotFound
	}
	delete(u.s.batches, id)
	for pid, p := range u.s.pcbs {
		if p.BatchID == id {
			delete(u.s.pcbs, pid)
		}
	}
	return nil
}

// CreatePCB регистрирует плату.
func (u *UnitStore) CreatePCB(_ context.Context, p *domain.PCB) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.batches[p.BatchID]; !ok {
		return repo.ErrInvalidReference
	}
	for _, other := range u.s.pcbs {
		if other.SerialNumber == p.SerialNumber {
			return repo.ErrAlreadyExists
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	u.s.pcbs[p.ID] = &cp
	return nil
}

// GetPCB возвращает плату.
func (u *UnitStore) GetPCB(_ context.Context, id uuid.UUID) (*domain.PCB, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	p, ok := u.s.pcbs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// GetPCBBySerial возвращает плату по серийному номеру.
func (u *UnitStore) GetPCBBySerial(_ context.Context, serial string) (*domain.PCB, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	for _, p := range u.s.pcbs {
		if p.SerialNumber == serial {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

// ListPCBs возвращает платы партии.
func (u *UnitStore) ListPCBs(_ context.Context, batchID uuid.UUID) ([]domain.PCB, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	var out []domain.PCB
	for _, p := range u.s.pcbs {
		if p.BatchID == batchID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out, nil
}

// UpdatePCB обновляет плату.
func (u *UnitStore) UpdatePCB(_ context.Context, p *domain.PCB) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.pcbs[p.ID]; !ok {
		return repo.ErrNotFound
	}
	for id, other := range u.s.pcbs {
		if id != p.ID && other.SerialNumber == p.SerialNumber {
			return repo.ErrAlreadyExists
		}
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	u.s.pcbs[p.ID] = &cp
	return nil
}

// DeletePCB удаляет плату.
func (u *UnitStore) DeletePCB(_ context.Context, id uuid.UUID) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.pcbs[id]; !ok {
		return repo.ErrNotFound
	}
	delete(u.s.pcbs, id)
	return nil
}

// --- Sessions ---

// SessionStore — сессии и подписи в памяти.
type SessionStore struct{ s *Store }

// Create создаёт сессию.
func (ss *SessionStore) Create(_ context.Context, sess *domain.Session) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	if _, ok := ss.s.pcbs[sess.PCBID]; !ok {
		return repo.ErrInvalidReference
	}
	cp := *sess
	ss.s.sessions[sess.ID] = &cp
	return nil
}

// GetByID возвращает сессию.
func (ss *SessionStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	sess, ok := ss.s.sessions[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// Update обновляет сессию.
func (ss *SessionStore) Update(_ context.Context, sess *domain.Session) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	if _, ok := ss.s.sessions[sess.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *sess
	ss.s.sessions[sess.ID] = &cp
	return nil
}

// Delete удаляет сессию, её результаты и подпись.
func (ss *SessionStore) Delete(_ context.Context, id uuid.UUID) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	if _, ok := ss.s.sessions[id]; !ok {
		return repo.ErrNotFound
	}
	delete(ss.s.sessions, id)
	delete(ss.s.signoffs, id)

	kept := ss.s.results[:0]
	for _, r := range ss.s.results {
		if r.SessionID != id {
			kept = append(kept, r)
		}
	}
	ss.s.results = kept
	return nil
}

// List фильтрует и сортирует сессии так же, как repo.SessionRepo.
func (ss *SessionStore) List(_ context.Context, f repo.SessionFilter) ([]repo.SessionListItem, int, error) {
	if _, err := repo.SessionOrderClause(f.Order); err != nil {
		return nil, 0, err
	}

	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	var items []repo.SessionListItem
	for _, sess := range ss.s.sessions {
		serial := ""
		if p, ok := ss.s.pcbs[sess.PCBID]; ok {
			serial = p.SerialNumber
		}
		switch {
		case f.PCBID != nil && sess.PCBID != *f.PCBID:
			continue
		case f.SerialNumber != "" && serial != f.SerialNumber:
			continue
		case f.OperatorID != "" && sess.OperatorID != f.OperatorID:
			continue
		case search != "" &&
			!strings.Contains(strings.ToLower(serial), search) &&
			!strings.Contains(strings.ToLower(sess.OperatorID), search) &&
			!strings.Contains(strings.ToLower(string(sess.Verdict)), search):
			continue
		}
		_, signed := ss.s.signoffs[sess.ID]
		items = append(items, repo.SessionListItem{Session: *sess, SerialNumber: serial, SignedOff: signed})
	}

	sortSessions(items, f.Order)
	total := len(items)

	if f.Offset > 0 {
		if f.Offset >= len(items) {
			items = nil
		} else {
			items = items[f.Offset:]
		}
	}
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items, total, nil
}

func sortSessions(items []repo.SessionListItem, order string) {
	order = strings.TrimSpace(order)
	if order == "" {
		order = repo.DefaultSessionOrder
	}
	desc := strings.HasPrefix(order, "-")
	field := strings.TrimPrefix(order, "-")

	key := func(it repo.SessionListItem) string {
		switch field {
		case "serial_number":
			return it.SerialNumber
		case "operator_id":
			return it.OperatorID
		case "verdict":
			return string(it.Verdict)
		default:
			return it.StartedAt.Format(time.RFC3339Nano)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return key(items[i]) > key(items[j])
		}
		return key(items[i]) < key(items[j])
	})
}

// MarkAbandoned отмечает сессию как брошенную.
func (ss *SessionStore) MarkAbandoned(_ context.Context, id uuid.UUID, at time.Time) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	sess, ok := ss.s.sessions[id]
	if !ok || sess.IsFinished() || sess.AbandonedAt != nil {
		return repo.ErrNotFound
	}
	sess.AbandonedAt = &at
	return nil
}

// ListStale возвращает незавершённые сессии, не менявшиеся с before.
func (ss *SessionStore) ListStale(_ context.Context, before time.Time, limit int) ([]domain.Session, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	var out []domain.Session
	for _, sess := range ss.s.sessions {
		if !sess.IsFinished() && sess.AbandonedAt == nil && sess.UpdatedAt.Before(before) {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateSignoff записывает подпись QA.
func (ss *SessionStore) CreateSignoff(_ context.Context, so *domain.QASignoff) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	if _, ok := ss.s.sessions[so.SessionID]; !ok {
		return repo.ErrNotFound
	}
	if _, ok := ss.s.signoffs[so.SessionID]; ok {
		return repo.ErrAlreadyExists
	}
	cp := *so
	ss.s.signoffs[so.SessionID] = &cp
	return nil
}

// GetSignoff возвращает подпись QA.
func (ss *SessionStore) GetSignoff(_ context.Context, sessionID uuid.UUID) (*domain.QASignoff, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	so, ok := ss.s.signoffs[sessionID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *so
	return &cp, nil
}

// --- Results ---

// ResultStore — результаты шагов в памяти.
type ResultStore struct{ s *Store }

// Add записывает результат.
func (rs *ResultStore) Add(_ context.Context, r *domain.StepResult) error {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()

	if _, ok := rs.s.sessions[r.SessionID]; !ok {
		return repo.ErrInvalidReference
	}
	rs.s.results = append(rs.s.results, *r)
	return nil
}

// ListBySession возвращает результаты сессии в порядке записи.
func (rs *ResultStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]domain.StepResult, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()

	var out []domain.StepResult
	for _, r := range rs.s.results {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Replace заменяет результаты сессии.
func (rs *ResultStore) Replace(_ context.Context, sessionID uuid.UUID, results []domain.StepResult) error {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()

	kept := rs.s.results[:0]
	for _, r := range rs.s.results {
		if r.SessionID != sessionID {
			kept = append(kept, r)
		}
	}
	for _, r := range results {
		r.SessionID = sessionID
		kept = append(kept, r)
	}
	rs.s.results = kept
	return nil
}

// --- Audit ---

// AuditStore — журнал аудита в памяти.
type AuditStore struct{ s *Store }

// Insert сохраняет событие; повтор того же ID игнорируется.
func (a *AuditStore) Insert(_ context.Context, evt *domain.AuditEvent) (bool, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	for _, e := range a.s.events {
		if e.ID == evt.ID {
			return false, nil
		}
	}
	a.s.events = append(a.s.events, *evt)
	return true, nil
}

// ListBySession возвращает события сессии по времени.
func (a *AuditStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]domain.AuditEvent, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	var out []domain.AuditEvent
	for _, e := range a.s.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}
