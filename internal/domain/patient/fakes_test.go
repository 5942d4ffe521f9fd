package patient

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/connectmydoc/patients/internal/platform/events"
)

var fixedNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

// -- In-memory store --

type memDB struct {
	nextID    int64
	patients  map[int64]Patient
	addresses map[int64]Address
	guardians map[int64]Guardian

	failPatientCreate error
}

func newMemDB() *memDB {
	return &memDB{
		patients:  make(map[int64]Patient),
		addresses: make(map[int64]Address),
		guardians: make(map[int64]Guardian),
	}
}

func (m *memDB) id() int64 {
	m.nextID++
	return m.nextID
}

type memSnapshot struct {
	nextID    int64
	patients  map[int64]Patient
	addresses map[int64]Address
	guardians map[int64]Guardian
}

func (m *memDB) snapshot() memSnapshot {
	s := memSnapshot{
		nextID:    m.nextID,
		patients:  make(map[int64]Patient, len(m.patients)),
		addresses: make(map[int64]Address, len(m.addresses)),
		guardians: make(map[int64]Guardian, len(m.guardians)),
	}
	for k, v := range m.patients {
		s.patients[k] = v
	}
	for k, v := range m.addresses {
		s.addresses[k] = v
	}
	for k, v := range m.guardians {
		s.guardians[k] = v
	}
	return s
}

func (m *memDB) restore(s memSnapshot) {
	m.nextID = s.nextID
	m.patients = s.patients
	m.addresses = s.addresses
	m.guardians = s.guardians
}

// memTx rolls the store back when fn fails.
type memTx struct {
	db    *memDB
	calls int
}

func (t *memTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	snap := t.db.snapshot()
	if err := fn(ctx); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

type memAddressRepo struct{ db *memDB }

func (r memAddressRepo) Create(_ context.Context, a *Address) error {
	a.ID = r.db.id()
	r.db.addresses[a.ID] = *a
	return nil
}

func (r memAddressRepo) GetByID(_ context.Context, id int64) (*Address, error) {
	a, ok := r.db.addresses[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r memAddressRepo) Update(_ context.Context, a *Address) (*Address, error) {
	if _, ok := r.db.addresses[a.ID]; !ok {
		return nil, nil
	}
	r.db.addresses[a.ID] = *a
	out := *a
	return &out, nil
}

func (r memAddressRepo) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := r.db.addresses[id]; !ok {
		return false, nil
	}
	delete(r.db.addresses, id)
	return true, nil
}

type memGuardianRepo struct{ db *memDB }

func (r memGuardianRepo) Create(_ context.Context, g *Guardian) error {
	g.ID = r.db.id()
	r.db.guardians[g.ID] = *g
	return nil
}

func (r memGuardianRepo) GetByID(_ context.Context, id int64) (*Guardian, error) {
	g, ok := r.db.guardians[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (r memGuardianRepo) Update(_ context.Context, g *Guardian) (*Guardian, error) {
	if _, ok := r.db.guardians[g.ID]; !ok {
		return nil, nil
	}
	r.db.guardians[g.ID] = *g
	out := *g
	return &out, nil
}

func (r memGuardianRepo) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := r.db.guardians[id]; !ok {
		return false, nil
	}
	delete(r.db.guardians, id)
	for pid, p := range r.db.patients {
		if p.GuardianID != nil && *p.GuardianID == id {
			p.GuardianID = nil
			r.db.patients[pid] = p
		}
	}
	return true, nil
}

type memPatientRepo struct {
	patientSetters
	db *memDB
}

func (r memPatientRepo) store(p *Patient) {
	stored := *p
	stored.Address = nil
	stored.Guardian = nil
	if p.GuardianID != nil {
		gid := *p.GuardianID
		stored.GuardianID = &gid
	}
	r.db.patients[p.ID] = stored
}

func (r memPatientRepo) load(p Patient) *Patient {
	out := p
	if a, ok := r.db.addresses[p.AddressID]; ok {
		out.Address = &a
	}
	if p.GuardianID != nil {
		gid := *p.GuardianID
		out.GuardianID = &gid
		if g, ok := r.db.guardians[gid]; ok {
			out.Guardian = &g
		}
	}
	return &out
}

func (r memPatientRepo) Create(_ context.Context, p *Patient) error {
	if r.db.failPatientCreate != nil {
		return r.db.failPatientCreate
	}
	p.ID = r.db.id()
	r.store(p)
	return nil
}

func (r memPatientRepo) GetByID(_ context.Context, id int64) (*Patient, error) {
	p, ok := r.db.patients[id]
	if !ok {
		return nil, nil
	}
	return r.load(p), nil
}

func (r memPatientRepo) Update(_ context.Context, p *Patient) (*Patient, error) {
	if _, ok := r.db.patients[p.ID]; !ok {
		return nil, nil
	}
	r.store(p)
	return r.load(r.db.patients[p.ID]), nil
}

func (r memPatientRepo) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := r.db.patients[id]; !ok {
		return false, nil
	}
	delete(r.db.patients, id)
	return true, nil
}

func (r memPatientRepo) List(_ context.Context, skip, take int) ([]*Patient, error) {
	ids := make([]int64, 0, len(r.db.patients))
	for id := range r.db.patients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*Patient
	for i := skip; i < len(ids) && len(out) < take; i++ {
		out = append(out, r.load(r.db.patients[ids[i]]))
	}
	return out, nil
}

func (r memPatientRepo) Count(context.Context) (int, error) {
	return len(r.db.patients), nil
}

// -- Doctor directory and publisher fakes --

type fakeDoctors struct {
	known map[int64]bool
	err   error
	calls int
}

func (f *fakeDoctors) VerifyDoctor(_ context.Context, id int64) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.known[id], nil
}

type recordingPublisher struct {
	published []events.Event
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

var errStoreDown = errors.New("store unavailable")

// -- Fixture --

type fixture struct {
	db      *memDB
	tx      *memTx
	doctors *fakeDoctors
	pub     *recordingPublisher
	helper  *Helper
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newMemDB()
	f := &fixture{
		db:      db,
		tx:      &memTx{db: db},
		doctors: &fakeDoctors{known: map[int64]bool{7: true, 8: true}},
		pub:     &recordingPublisher{},
	}
	f.helper = NewHelper(f.doctors, "US")
	f.helper.now = func() time.Time { return fixedNow }
	f.svc = NewService(memPatientRepo{db: db}, memAddressRepo{db: db}, memGuardianRepo{db: db}, f.tx, f.helper,
		WithEvents(f.pub))
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

// recordAged returns a valid record for a patient of the given age whose
// birthday this year has already passed.
func recordAged(age int) *PatientRecord {
	a := age
	return &PatientRecord{
		PatientName:        "Jane Doe",
		Email:              "jane.doe@example.com",
		Phone:              "1234567890",
		Age:                &a,
		Dob:                fixedNow.AddDate(-age, 0, -1),
		Gender:             "Female",
		PreferredStartTime: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		PreferredEndTime:   time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC),
		CreatedBy:          1,
		LastModifiedBy:     1,
		PreferredClinicID:  3,
		PreferredDoctorID:  7,
		StreetAddress:      "1 Main St",
		City:               "Springfield",
		State:              "IL",
		Country:            "USA",
		ZipCode:            "62701",
	}
}

func minorRecord() *PatientRecord {
	rec := recordAged(10)
	rec.PatientGuardianName = "John Doe"
	rec.PatientGuardianPhoneNumber = "2025550123"
	rec.PatientGuardianRelationship = "Father"
	return rec
}

func assertRule(t *testing.T, err error, key MessageKey) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", key)
	}
	be, ok := AsBusinessError(err)
	if !ok {
		t.Fatalf("expected business error %s, got %v", key, err)
	}
	if be.Key != key {
		t.Fatalf("expected %s, got %s (%v)", key, be.Key, err)
	}
}
