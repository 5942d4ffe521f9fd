package patient

import "time"

// MinorAgeLimit is the age below which a patient needs a guardian.
const MinorAgeLimit = 18

// Patient maps to the patient table with its address and guardian loaded.
type Patient struct {
	ID                 int64
	Name               string
	Email              string
	Phone              string
	Age                int
	Dob                time.Time
	Gender             string
	PreferredStartTime time.Time
	PreferredEndTime   time.Time
	CreatedDate        time.Time
	CreatedBy          int64
	LastModifiedDate   time.Time
	LastModifiedBy     int64
	PreferredClinicID  int64
	PreferredDoctorID  int64
	Image              []byte
	AddressID          int64
	Address            *Address
	GuardianID         *int64
	Guardian           *Guardian
}

func (p *Patient) IsMinor() bool {
	return p.Age < MinorAgeLimit
}

// Address maps to the patient_address table. Each address belongs to exactly
// one patient.
type Address struct {
	ID               int64
	StreetAddress    string
	City             string
	State            string
	Country          string
	ZipCode          string
	CreatedDate      *time.Time
	CreatedBy        *int64
	LastModifiedDate *time.Time
	LastModifiedBy   *int64
}

// Guardian maps to the patient_guardian table.
type Guardian struct {
	ID           int64
	Name         string
	PhoneNumber  string
	Relationship string
}

// ImageUpload is a patient photo received as a multipart file part.
type ImageUpload struct {
	FileName string
	Data     []byte
}

// PatientRecord is the flattened patient, address and guardian view
// exchanged with API clients.
type PatientRecord struct {
	PatientID          *int64       `json:"patient_id,omitempty"`
	PatientName        string       `json:"patient_name"`
	Email              string       `json:"email"`
	Phone              string       `json:"phone"`
	Age                *int         `json:"age,omitempty"`
	Dob                time.Time    `json:"dob"`
	Gender             string       `json:"gender"`
	PreferredStartTime time.Time    `json:"preferred_start_time"`
	PreferredEndTime   time.Time    `json:"preferred_end_time"`
	CreatedDate        time.Time    `json:"created_date"`
	CreatedBy          int64        `json:"created_by"`
	LastModifiedDate   time.Time    `json:"last_modified_date"`
	LastModifiedBy     int64        `json:"last_modified_by"`
	PreferredClinicID  int64        `json:"preferred_clinic_id"`
	PreferredDoctorID  int64        `json:"preferred_doctor_id"`
	Image              *ImageUpload `json:"-"`
	HexImage           string       `json:"hex_image,omitempty"`

	PatientAddressID *int64 `json:"patient_address_id,omitempty"`
	StreetAddress    string `json:"street_address"`
	City             string `json:"city"`
	State            string `json:"state"`
	Country          string `json:"country"`
	ZipCode          string `json:"zip_code"`

	PatientGuardianID           *int64 `json:"patient_guardian_id,omitempty"`
	PatientGuardianName         string `json:"patient_guardian_name,omitempty"`
	PatientGuardianPhoneNumber  string `json:"patient_guardian_phone_number,omitempty"`
	PatientGuardianRelationship string `json:"patient_guardian_relationship,omitempty"`
}
