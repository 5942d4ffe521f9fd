package patient

import (
	"context"
	"encoding/base64"
	"regexp"
	"time"
)

var emailPattern = regexp.MustCompile(`(?i)^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// IsValidEmail reports whether email looks like local@domain.tld.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Helper maps between the flattened PatientRecord and the stored entities
// and owns the validation rules shared by create and update.
type Helper struct {
	doctors DoctorDirectory
	region  string
	now     func() time.Time
}

func NewHelper(doctors DoctorDirectory, phoneRegion string) *Helper {
	return &Helper{doctors: doctors, region: phoneRegion, now: time.Now}
}

// MapEntityToRecord flattens a patient with its loaded address and guardian.
func (h *Helper) MapEntityToRecord(p *Patient) (*PatientRecord, error) {
	if p == nil {
		return nil, newBusinessError(NullPatientDTO)
	}

	id := p.ID
	age := p.Age
	rec := &PatientRecord{
		PatientID:          &id,
		PatientName:        p.Name,
		Email:              p.Email,
		Phone:              p.Phone,
		Age:                &age,
		Dob:                p.Dob,
		Gender:             p.Gender,
		PreferredStartTime: p.PreferredStartTime,
		PreferredEndTime:   p.PreferredEndTime,
		CreatedDate:        p.CreatedDate,
		CreatedBy:          p.CreatedBy,
		LastModifiedDate:   p.LastModifiedDate,
		LastModifiedBy:     p.LastModifiedBy,
		PreferredClinicID:  p.PreferredClinicID,
		PreferredDoctorID:  p.PreferredDoctorID,
	}
	if len(p.Image) > 0 {
		rec.HexImage = base64.StdEncoding.EncodeToString(p.Image)
	}

	addrID := p.AddressID
	rec.PatientAddressID = &addrID
	if p.Address != nil {
		rec.StreetAddress = p.Address.StreetAddress
		rec.City = p.Address.City
		rec.State = p.Address.State
		rec.Country = p.Address.Country
		rec.ZipCode = p.Address.ZipCode
	}

	if (p.IsMinor() || p.GuardianID != nil) && p.Guardian != nil {
		gid := p.Guardian.ID
		rec.PatientGuardianID = &gid
		rec.PatientGuardianName = p.Guardian.Name
		rec.PatientGuardianPhoneNumber = p.Guardian.PhoneNumber
		rec.PatientGuardianRelationship = p.Guardian.Relationship
	}
	return rec, nil
}

// MapRecordToEntity builds an unsaved patient owning addr. The guardian is
// only attached when the supplied age makes the patient a minor.
func (h *Helper) MapRecordToEntity(rec *PatientRecord, addr *Address, guardian *Guardian) (*Patient, error) {
	if rec == nil {
		return nil, newBusinessError(NullPatientDTO)
	}
	if rec.Age == nil {
		return nil, newBusinessError(MissingAge)
	}

	p := &Patient{
		Name:               rec.PatientName,
		Email:              rec.Email,
		Phone:              rec.Phone,
		Age:                *rec.Age,
		Dob:                rec.Dob,
		Gender:             rec.Gender,
		PreferredStartTime: rec.PreferredStartTime,
		PreferredEndTime:   rec.PreferredEndTime,
		CreatedDate:        rec.CreatedDate,
		CreatedBy:          rec.CreatedBy,
		LastModifiedDate:   rec.LastModifiedDate,
		LastModifiedBy:     rec.LastModifiedBy,
		PreferredClinicID:  rec.PreferredClinicID,
		PreferredDoctorID:  rec.PreferredDoctorID,
	}

	if rec.Image != nil {
		if err := ValidateImage(rec.Image); err != nil {
			return nil, err
		}
		p.Image = rec.Image.Data
	}

	if addr != nil {
		p.AddressID = addr.ID
		p.Address = addr
	}
	if guardian != nil && p.IsMinor() {
		gid := guardian.ID
		p.GuardianID = &gid
		p.Guardian = guardian
	}
	return p, nil
}

// CalculateAge returns the number of full years between dob and now. A
// 29 February birthday is reached on 28 February in common years.
func (h *Helper) CalculateAge(dob time.Time) int {
	return ageAt(dob, h.now())
}

func ageAt(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	month, day := dob.Month(), dob.Day()
	if month == time.February && day == 29 && !isLeap(now.Year()) {
		day = 28
	}
	if now.Month() < month || (now.Month() == month && now.Day() < day) {
		age--
	}
	return age
}

// MaxAge is the oldest accepted patient age in years.
const MaxAge = 150

// ValidateDob rejects a date of birth later than today or one giving an
// age above MaxAge.
func (h *Helper) ValidateDob(dob time.Time) error {
	if age := ageAt(dob, h.now()); age < 0 || age > MaxAge {
		return newBusinessErrorf(InvalidDob, dob.Format("2006-01-02"))
	}
	return nil
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// ValidateDoctorID asks the doctor directory whether id exists.
func (h *Helper) ValidateDoctorID(ctx context.Context, id int64) (bool, error) {
	return h.doctors.VerifyDoctor(ctx, id)
}

// NewAddress builds an unsaved address from the record's address fields.
func (h *Helper) NewAddress(rec *PatientRecord) *Address {
	createdBy := rec.CreatedBy
	modifiedBy := rec.LastModifiedBy
	created := rec.CreatedDate
	modified := rec.LastModifiedDate
	return &Address{
		StreetAddress:    rec.StreetAddress,
		City:             rec.City,
		State:            rec.State,
		Country:          rec.Country,
		ZipCode:          rec.ZipCode,
		CreatedDate:      &created,
		CreatedBy:        &createdBy,
		LastModifiedDate: &modified,
		LastModifiedBy:   &modifiedBy,
	}
}

// NewGuardian builds an unsaved guardian from the record's guardian fields.
func (h *Helper) NewGuardian(rec *PatientRecord) *Guardian {
	return &Guardian{
		Name:         rec.PatientGuardianName,
		PhoneNumber:  rec.PatientGuardianPhoneNumber,
		Relationship: rec.PatientGuardianRelationship,
	}
}
