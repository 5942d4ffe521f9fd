package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connectmydoc/patients/internal/platform/db"
)

// -- Address Repository --

type addressRepoPG struct {
	pool *pgxpool.Pool
}

func NewAddressRepo(pool *pgxpool.Pool) AddressRepository {
	return &addressRepoPG{pool: pool}
}

const addressCols = `address_id, street_address, city, state, country, zip_code,
	created_date, created_by, last_modified_date, last_modified_by`

func scanAddress(row pgx.Row) (*Address, error) {
	var a Address
	err := row.Scan(&a.ID, &a.StreetAddress, &a.City, &a.State, &a.Country, &a.ZipCode,
		&a.CreatedDate, &a.CreatedBy, &a.LastModifiedDate, &a.LastModifiedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *addressRepoPG) Create(ctx context.Context, a *Address) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_address (street_address, city, state, country, zip_code,
			created_date, created_by, last_modified_date, last_modified_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING address_id`,
		a.StreetAddress, a.City, a.State, a.Country, a.ZipCode,
		a.CreatedDate, a.CreatedBy, a.LastModifiedDate, a.LastModifiedBy,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("address create: %w", err)
	}
	return nil
}

func (r *addressRepoPG) GetByID(ctx context.Context, id int64) (*Address, error) {
	a, err := scanAddress(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+addressCols+` FROM patient_address WHERE address_id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("address get %d: %w", id, err)
	}
	return a, nil
}

func (r *addressRepoPG) Update(ctx context.Context, a *Address) (*Address, error) {
	out, err := scanAddress(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient_address SET street_address=$2, city=$3, state=$4, country=$5, zip_code=$6,
			created_date=$7, created_by=$8, last_modified_date=$9, last_modified_by=$10
		WHERE address_id = $1
		RETURNING `+addressCols,
		a.ID, a.StreetAddress, a.City, a.State, a.Country, a.ZipCode,
		a.CreatedDate, a.CreatedBy, a.LastModifiedDate, a.LastModifiedBy,
	))
	if err != nil {
		return nil, fmt.Errorf("address update %d: %w", a.ID, err)
	}
	return out, nil
}

func (r *addressRepoPG) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM patient_address WHERE address_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("address delete %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// -- Guardian Repository --

type guardianRepoPG struct {
	pool *pgxpool.Pool
}

func NewGuardianRepo(pool *pgxpool.Pool) GuardianRepository {
	return &guardianRepoPG{pool: pool}
}

const guardianCols = `guardian_id, name, phone_number, relationship`

func scanGuardian(row pgx.Row) (*Guardian, error) {
	var g Guardian
	err := row.Scan(&g.ID, &g.Name, &g.PhoneNumber, &g.Relationship)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *guardianRepoPG) Create(ctx context.Context, g *Guardian) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_guardian (name, phone_number, relationship)
		VALUES ($1,$2,$3)
		RETURNING guardian_id`,
		g.Name, g.PhoneNumber, g.Relationship,
	).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("guardian create: %w", err)
	}
	return nil
}

func (r *guardianRepoPG) GetByID(ctx context.Context, id int64) (*Guardian, error) {
	g, err := scanGuardian(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+guardianCols+` FROM patient_guardian WHERE guardian_id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("guardian get %d: %w", id, err)
	}
	return g, nil
}

func (r *guardianRepoPG) Update(ctx context.Context, g *Guardian) (*Guardian, error) {
	out, err := scanGuardian(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient_guardian SET name=$2, phone_number=$3, relationship=$4
		WHERE guardian_id = $1
		RETURNING `+guardianCols,
		g.ID, g.Name, g.PhoneNumber, g.Relationship,
	))
	if err != nil {
		return nil, fmt.Errorf("guardian update %d: %w", g.ID, err)
	}
	return out, nil
}

func (r *guardianRepoPG) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM patient_guardian WHERE guardian_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("guardian delete %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// -- Patient Repository --

type patientRepoPG struct {
	patientSetters
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

// patientSelect loads a patient with its address and, when present, its
// guardian in one round trip.
const patientSelect = `SELECT
	p.patient_id, p.name, p.email, p.phone, p.age, p.dob, p.gender,
	p.preferred_start_time, p.preferred_end_time,
	p.created_date, p.created_by, p.last_modified_date, p.last_modified_by,
	p.preferred_clinic_id, p.preferred_doctor_id, p.image, p.address_id, p.guardian_id,
	a.address_id, a.street_address, a.city, a.state, a.country, a.zip_code,
	a.created_date, a.created_by, a.last_modified_date, a.last_modified_by,
	g.name, g.phone_number, g.relationship
FROM patient p
JOIN patient_address a ON a.address_id = p.address_id
LEFT JOIN patient_guardian g ON g.guardian_id = p.guardian_id`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var a Address
	var gName, gPhone, gRelation *string
	err := row.Scan(
		&p.ID, &p.Name, &p.Email, &p.Phone, &p.Age, &p.Dob, &p.Gender,
		&p.PreferredStartTime, &p.PreferredEndTime,
		&p.CreatedDate, &p.CreatedBy, &p.LastModifiedDate, &p.LastModifiedBy,
		&p.PreferredClinicID, &p.PreferredDoctorID, &p.Image, &p.AddressID, &p.GuardianID,
		&a.ID, &a.StreetAddress, &a.City, &a.State, &a.Country, &a.ZipCode,
		&a.CreatedDate, &a.CreatedBy, &a.LastModifiedDate, &a.LastModifiedBy,
		&gName, &gPhone, &gRelation,
	)
	if err != nil {
		return nil, err
	}
	p.Address = &a
	if p.GuardianID != nil && gName != nil {
		p.Guardian = &Guardian{
			ID:           *p.GuardianID,
			Name:         *gName,
			PhoneNumber:  deref(gPhone),
			Relationship: deref(gRelation),
		}
	}
	return &p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	now := time.Now().UTC()
	if p.CreatedDate.IsZero() {
		p.CreatedDate = now
	}
	if p.LastModifiedDate.IsZero() {
		p.LastModifiedDate = now
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (name, email, phone, age, dob, gender,
			preferred_start_time, preferred_end_time,
			created_date, created_by, last_modified_date, last_modified_by,
			preferred_clinic_id, preferred_doctor_id, image, address_id, guardian_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING patient_id`,
		p.Name, p.Email, p.Phone, p.Age, p.Dob, p.Gender,
		p.PreferredStartTime, p.PreferredEndTime,
		p.CreatedDate, p.CreatedBy, p.LastModifiedDate, p.LastModifiedBy,
		p.PreferredClinicID, p.PreferredDoctorID, p.Image, p.AddressID, p.GuardianID,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, patientSelect+` WHERE p.patient_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("patient get %d: %w", id, err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) (*Patient, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE patient SET name=$2, email=$3, phone=$4, age=$5, dob=$6, gender=$7,
			preferred_start_time=$8, preferred_end_time=$9,
			created_date=$10, created_by=$11, last_modified_date=$12, last_modified_by=$13,
			preferred_clinic_id=$14, preferred_doctor_id=$15, image=$16,
			address_id=$17, guardian_id=$18
		WHERE patient_id = $1`,
		p.ID, p.Name, p.Email, p.Phone, p.Age, p.Dob, p.Gender,
		p.PreferredStartTime, p.PreferredEndTime,
		p.CreatedDate, p.CreatedBy, p.LastModifiedDate, p.LastModifiedBy,
		p.PreferredClinicID, p.PreferredDoctorID, p.Image,
		p.AddressID, p.GuardianID,
	)
	if err != nil {
		return nil, fmt.Errorf("patient update %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return r.GetByID(ctx, p.ID)
}

func (r *patientRepoPG) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM patient WHERE patient_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("patient delete %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *patientRepoPG) List(ctx context.Context, skip, take int) ([]*Patient, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		patientSelect+` ORDER BY p.patient_id LIMIT $1 OFFSET $2`, take, skip)
	if err != nil {
		return nil, fmt.Errorf("patient list: %w", err)
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patient list scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *patientRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&n); err != nil {
		return 0, fmt.Errorf("patient count: %w", err)
	}
	return n, nil
}
