package patient

import "context"

// AddressRepository stores patient_address rows. GetByID and Update return
// nil, nil when the row does not exist.
type AddressRepository interface {
	Create(ctx context.Context, a *Address) error
	GetByID(ctx context.Context, id int64) (*Address, error)
	Update(ctx context.Context, a *Address) (*Address, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type GuardianRepository interface {
	Create(ctx context.Context, g *Guardian) error
	GetByID(ctx context.Context, id int64) (*Guardian, error)
	Update(ctx context.Context, g *Guardian) (*Guardian, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// PatientRepository stores patients and loads them with their address and
// guardian.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	Update(ctx context.Context, p *Patient) (*Patient, error)
	Delete(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, skip, take int) ([]*Patient, error)
	Count(ctx context.Context) (int, error)

	// SetPrimaryClinic and SetPrimaryDoctor only change p in memory; the
	// caller persists with Update.
	SetPrimaryClinic(p *Patient, clinicID int64)
	SetPrimaryDoctor(p *Patient, doctorID int64)
}

// TxRunner runs fn in one transaction that repositories pick up from ctx.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type patientSetters struct{}

func (patientSetters) SetPrimaryClinic(p *Patient, clinicID int64) {
	if p != nil {
		p.PreferredClinicID = clinicID
	}
}

func (patientSetters) SetPrimaryDoctor(p *Patient, doctorID int64) {
	if p != nil {
		p.PreferredDoctorID = doctorID
	}
}
