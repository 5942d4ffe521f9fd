package patient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/connectmydoc/patients/internal/platform/events"
	"github.com/connectmydoc/patients/internal/platform/metrics"
	"github.com/connectmydoc/patients/internal/platform/telemetry"
	"github.com/connectmydoc/patients/pkg/pagination"
)

const (
	EventPatientCreated = "patient.created"
	EventPatientUpdated = "patient.updated"
	EventPatientDeleted = "patient.deleted"

	publishTimeout = 5 * time.Second
)

// guardianTransition is what an update does to the patient's guardian link.
type guardianTransition string

const (
	transitionNone     guardianTransition = "none"
	transitionAttached guardianTransition = "attached"
	transitionUpdated  guardianTransition = "updated"
	transitionDetached guardianTransition = "detached"
	transitionRetained guardianTransition = "retained"
)

// Service runs the patient lifecycle: validation, the guardian rules and
// the address/guardian/patient writes, each operation in one transaction.
type Service struct {
	patients  PatientRepository
	addresses AddressRepository
	guardians GuardianRepository
	tx        TxRunner
	helper    *Helper
	events    events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(patients PatientRepository, addresses AddressRepository, guardians GuardianRepository, tx TxRunner, helper *Helper, opts ...Option) *Service {
	s := &Service{
		patients:  patients,
		addresses: addresses,
		guardians: guardians,
		tx:        tx,
		helper:    helper,
		events:    events.NopPublisher{},
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, "patient."+name, trace.WithAttributes(attrs...))
}

// finish ends span and counts business rule rejections.
func (s *Service) finish(span trace.Span, err error) {
	if be, ok := AsBusinessError(err); ok {
		metrics.RecordBusinessRejection(string(be.Key))
	}
	telemetry.EndSpan(span, err)
}

func (s *Service) verifyDoctor(ctx context.Context, doctorID int64) error {
	ok, err := s.helper.ValidateDoctorID(ctx, doctorID)
	if err != nil {
		return err
	}
	if !ok {
		return newBusinessErrorf(DoctorNotFound, strconv.FormatInt(doctorID, 10))
	}
	return nil
}

// CreatePatient validates rec and stores the guardian (minors only), the
// address and the patient together.
func (s *Service) CreatePatient(ctx context.Context, rec *PatientRecord) (out *PatientRecord, err error) {
	ctx, span := s.startSpan(ctx, "Create")
	defer func() { s.finish(span, err) }()

	if rec == nil {
		return nil, newBusinessError(NullPatientDTO)
	}
	if err := ValidatePhone(rec.Phone); err != nil {
		return nil, err
	}
	if err := ValidateRequiredFields(rec); err != nil {
		return nil, err
	}
	if err := s.helper.ValidateDob(rec.Dob); err != nil {
		return nil, err
	}
	if err := s.verifyDoctor(ctx, rec.PreferredDoctorID); err != nil {
		return nil, err
	}
	if rec.Age == nil {
		return nil, newBusinessError(MissingAge)
	}
	age := s.helper.CalculateAge(rec.Dob)
	if *rec.Age != age {
		return nil, newBusinessErrorf(AgeDobMismatch, fmt.Sprintf("age %d, dob gives %d", *rec.Age, age))
	}
	minor := age < MinorAgeLimit
	if minor {
		if err := s.helper.ValidateGuardianFields(rec); err != nil {
			return nil, err
		}
	}
	if err := ValidateImage(rec.Image); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if rec.CreatedDate.IsZero() {
		rec.CreatedDate = now
	}
	if rec.LastModifiedDate.IsZero() {
		rec.LastModifiedDate = now
	}

	var created *Patient
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var guardian *Guardian
		if minor {
			guardian = s.helper.NewGuardian(rec)
			if err := s.guardians.Create(ctx, guardian); err != nil {
				return err
			}
		}

		addr := s.helper.NewAddress(rec)
		if err := s.addresses.Create(ctx, addr); err != nil {
			return err
		}

		p, err := s.helper.MapRecordToEntity(rec, addr, guardian)
		if err != nil {
			return err
		}
		if err := s.patients.Create(ctx, p); err != nil {
			return err
		}

		created, err = s.patients.GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		if created == nil {
			return fmt.Errorf("patient %d missing after create", p.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out, err = s.helper.MapEntityToRecord(created)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("patient.id", created.ID), attribute.Bool("patient.minor", minor))
	metrics.RecordPatientCreated(minor)
	s.publish(ctx, EventPatientCreated, created.ID, map[string]any{
		"minor":               minor,
		"preferred_clinic_id": created.PreferredClinicID,
		"preferred_doctor_id": created.PreferredDoctorID,
	})
	s.logger.Info().Int64("patient_id", created.ID).Bool("minor", minor).Msg("patient created")
	return out, nil
}

// UpdatePatient replaces the patient's data and address and applies the
// guardian transition implied by the new date of birth.
func (s *Service) UpdatePatient(ctx context.Context, rec *PatientRecord, patientID int64) (out *PatientRecord, err error) {
	ctx, span := s.startSpan(ctx, "Update", attribute.Int64("patient.id", patientID))
	defer func() { s.finish(span, err) }()

	if rec == nil {
		return nil, newBusinessError(NullPatientDTO)
	}
	if err := ValidatePhone(rec.Phone); err != nil {
		return nil, err
	}
	if err := ValidateRequiredFields(rec); err != nil {
		return nil, err
	}
	if err := s.helper.ValidateDob(rec.Dob); err != nil {
		return nil, err
	}

	existing, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, newBusinessError(NoExistingPatient)
	}
	if rec.PatientAddressID == nil {
		return nil, newBusinessError(NoExistingPatientAddress)
	}
	if err := ValidateImage(rec.Image); err != nil {
		return nil, err
	}
	if err := s.verifyDoctor(ctx, rec.PreferredDoctorID); err != nil {
		return nil, err
	}
	if *rec.PatientAddressID != existing.AddressID {
		return nil, newBusinessErrorf(AddressIDDoNotMatch, strconv.FormatInt(*rec.PatientAddressID, 10))
	}

	wasMinor := existing.IsMinor()
	age := s.helper.CalculateAge(rec.Dob)
	nowMinor := age < MinorAgeLimit

	var (
		updated    *Patient
		transition guardianTransition
	)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		addr, err := s.addresses.GetByID(ctx, existing.AddressID)
		if err != nil {
			return err
		}
		if addr == nil {
			return newBusinessError(PatientAddressNotFound)
		}

		transition, err = s.planGuardianTransition(rec, existing, nowMinor)
		if err != nil {
			return err
		}

		applyAddress(addr, rec, s.now().UTC())
		addr, err = s.addresses.Update(ctx, addr)
		if err != nil {
			return err
		}
		if addr == nil {
			return newBusinessError(PatientAddressNotFound)
		}

		s.applyRecord(existing, rec, age)
		existing.Address = addr

		if err := s.applyGuardianTransition(ctx, existing, rec, transition); err != nil {
			return err
		}

		updated, err = s.patients.Update(ctx, existing)
		if err != nil {
			return err
		}
		if updated == nil {
			return newBusinessError(NoExistingPatient)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out, err = s.helper.MapEntityToRecord(updated)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("patient.guardian_transition", string(transition)))
	metrics.RecordPatientUpdated(string(transition))
	s.publish(ctx, EventPatientUpdated, updated.ID, map[string]any{
		"was_minor":  wasMinor,
		"now_minor":  nowMinor,
		"transition": string(transition),
	})
	s.logger.Info().
		Int64("patient_id", updated.ID).
		Bool("was_minor", wasMinor).
		Bool("now_minor", nowMinor).
		Str("guardian_transition", string(transition)).
		Msg("patient updated")
	return out, nil
}

// planGuardianTransition decides the guardian change for an update without
// writing anything.
func (s *Service) planGuardianTransition(rec *PatientRecord, existing *Patient, nowMinor bool) (guardianTransition, error) {
	hasGuardian := existing.GuardianID != nil

	switch {
	case nowMinor && hasGuardian:
		if rec.PatientGuardianID == nil {
			return "", newBusinessError(MissingGuardianID)
		}
		if *rec.PatientGuardianID != *existing.GuardianID {
			return "", newBusinessErrorf(GuardianWasNotFound, strconv.FormatInt(*rec.PatientGuardianID, 10))
		}
		if err := s.helper.ValidateGuardianFields(rec); err != nil {
			return "", err
		}
		return transitionUpdated, nil

	case nowMinor:
		if err := s.helper.ValidateGuardianFields(rec); err != nil {
			return "", err
		}
		return transitionAttached, nil

	case hasGuardian:
		if rec.PatientGuardianID == nil {
			return transitionDetached, nil
		}
		if *rec.PatientGuardianID != *existing.GuardianID {
			return "", newBusinessErrorf(GuardianWasNotFound, strconv.FormatInt(*rec.PatientGuardianID, 10))
		}
		if !blank(rec.PatientGuardianName) && !blank(rec.PatientGuardianPhoneNumber) && !blank(rec.PatientGuardianRelationship) {
			if err := s.helper.ValidateGuardianFields(rec); err != nil {
				return "", err
			}
			return transitionUpdated, nil
		}
		return transitionRetained, nil
	}
	return transitionNone, nil
}

func (s *Service) applyGuardianTransition(ctx context.Context, p *Patient, rec *PatientRecord, t guardianTransition) error {
	switch t {
	case transitionAttached:
		g := s.helper.NewGuardian(rec)
		if err := s.guardians.Create(ctx, g); err != nil {
			return err
		}
		p.GuardianID = &g.ID
		p.Guardian = g

	case transitionUpdated:
		g := s.helper.NewGuardian(rec)
		g.ID = *p.GuardianID
		saved, err := s.guardians.Update(ctx, g)
		if err != nil {
			return err
		}
		if saved == nil {
			return newBusinessErrorf(GuardianWasNotFound, strconv.FormatInt(g.ID, 10))
		}
		p.Guardian = saved

	case transitionDetached:
		// The guardian row stays; siblings may still reference it.
		p.GuardianID = nil
		p.Guardian = nil
	}
	return nil
}

// applyRecord copies the editable fields of rec onto p. Creation audit
// fields are kept and the image is only replaced by a new upload.
func (s *Service) applyRecord(p *Patient, rec *PatientRecord, age int) {
	p.Name = rec.PatientName
	p.Email = rec.Email
	p.Phone = rec.Phone
	p.Age = age
	p.Dob = rec.Dob
	p.Gender = rec.Gender
	p.PreferredStartTime = rec.PreferredStartTime
	p.PreferredEndTime = rec.PreferredEndTime
	p.PreferredClinicID = rec.PreferredClinicID
	p.PreferredDoctorID = rec.PreferredDoctorID
	p.LastModifiedBy = rec.LastModifiedBy
	p.LastModifiedDate = rec.LastModifiedDate
	if p.LastModifiedDate.IsZero() {
		p.LastModifiedDate = s.now().UTC()
	}
	if rec.Image != nil {
		p.Image = rec.Image.Data
	}
}

func applyAddress(a *Address, rec *PatientRecord, now time.Time) {
	a.StreetAddress = rec.StreetAddress
	a.City = rec.City
	a.State = rec.State
	a.Country = rec.Country
	a.ZipCode = rec.ZipCode

	modified := rec.LastModifiedDate
	if modified.IsZero() {
		modified = now
	}
	modifiedBy := rec.LastModifiedBy
	a.LastModifiedDate = &modified
	a.LastModifiedBy = &modifiedBy
}

// GetPatient returns nil, nil when the patient does not exist.
func (s *Service) GetPatient(ctx context.Context, id int64) (out *PatientRecord, err error) {
	ctx, span := s.startSpan(ctx, "Get", attribute.Int64("patient.id", id))
	defer func() { s.finish(span, err) }()

	p, err := s.patients.GetByID(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	return s.helper.MapEntityToRecord(p)
}

// ListPatients returns one page ordered by patient id and the total count.
func (s *Service) ListPatients(ctx context.Context, pageNumber, pageSize int) (out []*PatientRecord, total int, err error) {
	ctx, span := s.startSpan(ctx, "List")
	defer func() { s.finish(span, err) }()

	pg := pagination.New(pageNumber, pageSize)
	patients, err := s.patients.List(ctx, pg.Skip(), pg.PageSize)
	if err != nil {
		return nil, 0, err
	}
	total, err = s.patients.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	out = make([]*PatientRecord, 0, len(patients))
	for _, p := range patients {
		rec, err := s.helper.MapEntityToRecord(p)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, nil
}

// DeletePatient removes the patient and the address it owns. The guardian
// is kept because other patients may share it.
func (s *Service) DeletePatient(ctx context.Context, id int64) (deleted bool, err error) {
	ctx, span := s.startSpan(ctx, "Delete", attribute.Int64("patient.id", id))
	defer func() { s.finish(span, err) }()

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.patients.GetByID(ctx, id)
		if err != nil || p == nil {
			return err
		}
		if deleted, err = s.patients.Delete(ctx, id); err != nil || !deleted {
			return err
		}
		_, err = s.addresses.Delete(ctx, p.AddressID)
		return err
	})
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	metrics.RecordPatientDeleted()
	s.publish(ctx, EventPatientDeleted, id, nil)
	s.logger.Info().Int64("patient_id", id).Msg("patient deleted")
	return true, nil
}

func (s *Service) DeleteAddress(ctx context.Context, id int64) (bool, error) {
	return s.addresses.Delete(ctx, id)
}

func (s *Service) DeleteGuardian(ctx context.Context, id int64) (bool, error) {
	return s.guardians.Delete(ctx, id)
}

// AssignPrimaryClinic sets the patient's preferred clinic.
func (s *Service) AssignPrimaryClinic(ctx context.Context, patientID, clinicID int64) (out *PatientRecord, err error) {
	ctx, span := s.startSpan(ctx, "AssignPrimaryClinic", attribute.Int64("patient.id", patientID))
	defer func() { s.finish(span, err) }()

	if clinicID <= 0 {
		return nil, newBusinessError(InvalidClinicID)
	}
	return s.assign(ctx, patientID, func(p *Patient) { s.patients.SetPrimaryClinic(p, clinicID) })
}

// AssignPrimaryDoctor sets the patient's preferred doctor after checking the
// doctor exists.
func (s *Service) AssignPrimaryDoctor(ctx context.Context, patientID, doctorID int64) (out *PatientRecord, err error) {
	ctx, span := s.startSpan(ctx, "AssignPrimaryDoctor", attribute.Int64("patient.id", patientID))
	defer func() { s.finish(span, err) }()

	if doctorID <= 0 {
		return nil, newBusinessError(InvalidDoctorID)
	}
	if err := s.verifyDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.assign(ctx, patientID, func(p *Patient) { s.patients.SetPrimaryDoctor(p, doctorID) })
}

func (s *Service) assign(ctx context.Context, patientID int64, set func(*Patient)) (*PatientRecord, error) {
	var updated *Patient
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.patients.GetByID(ctx, patientID)
		if err != nil {
			return err
		}
		if p == nil {
			return newBusinessError(NoExistingPatient)
		}
		set(p)
		p.LastModifiedDate = s.now().UTC()

		updated, err = s.patients.Update(ctx, p)
		if err != nil {
			return err
		}
		if updated == nil {
			return newBusinessError(NoExistingPatient)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.helper.MapEntityToRecord(updated)
}

// publish hands a lifecycle event to the broker after commit. Failures are
// logged and counted but never fail the operation.
func (s *Service) publish(ctx context.Context, eventType string, patientID int64, data any) {
	evt, err := events.New(eventType, patientID, data)
	if err == nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		err = s.events.Publish(pctx, evt)
	}
	metrics.RecordEventPublished(eventType, err)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Int64("patient_id", patientID).Msg("publish lifecycle event")
	}
}

// IsNotFound reports whether err means the patient does not exist.
func IsNotFound(err error) bool {
	return IsRule(err, NoExistingPatient)
}
