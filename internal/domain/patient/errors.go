package patient

import (
	"errors"
	"strconv"
)

// MessageKey names a business rule. The set of keys is part of the API
// contract: clients receive it as the "code" of a 400 response.
type MessageKey string

const (
	NullPatientDTO              MessageKey = "NullPatientDTO"
	InvalidPatientName          MessageKey = "InvalidPatientName"
	InvalidEmail                MessageKey = "InvalidEmail"
	InvalidEmailFormat          MessageKey = "InvalidEmailFormat"
	InvalidPhone                MessageKey = "InvalidPhone"
	InvalidPhoneNumberFormat    MessageKey = "InvalidPhoneNumberFormat"
	PhoneNumberTooShort         MessageKey = "PhoneNumberTooShort"
	MissingDobOrAge             MessageKey = "MissingDobOrAge"
	MissingAge                  MessageKey = "MissingAge"
	AgeDobMismatch              MessageKey = "AgeDobMismatch"
	InvalidDob                  MessageKey = "InvalidDob"
	InvalidGender               MessageKey = "InvalidGender"
	InvalidPreferredStartTime   MessageKey = "InvalidPreferredStartTime"
	InvalidPreferredEndTime     MessageKey = "InvalidPreferredEndTime"
	InvalidPreferredTimeRange   MessageKey = "InvalidPreferredTimeRange"
	InvalidCreatedBy            MessageKey = "InvalidCreatedBy"
	InvalidLastModifiedBy       MessageKey = "InvalidLastModifiedBy"
	InvalidStreetAddress        MessageKey = "InvalidStreetAddress"
	InvalidClinicID             MessageKey = "InvalidClinicId"
	InvalidDoctorID             MessageKey = "InvalidDoctorId"
	InvalidState                MessageKey = "InvalidState"
	InvalidCity                 MessageKey = "InvalidCity"
	InvalidCountry              MessageKey = "InvalidCountry"
	InvalidZipCode              MessageKey = "InvalidZipCode"
	MissingGuardianName         MessageKey = "MissingGuardianName"
	MissingGuardianPhone        MessageKey = "MissingGuardianPhone"
	MissingGuardianRelationship MessageKey = "MissingGuardianRelationship"
	InvalidGuardianPhone        MessageKey = "InvalidGuardianPhone"
	MissingGuardianID           MessageKey = "MissingGuardianId"
	GuardianWasNotFound         MessageKey = "GuardianWasNotFound"
	DoctorNotFound              MessageKey = "DoctorNotFound"
	NoExistingPatient           MessageKey = "NoExistingPatient"
	NoExistingPatientAddress    MessageKey = "NoExistingPatientAddress"
	PatientAddressNotFound      MessageKey = "PatientAddressNotFound"
	AddressIDDoNotMatch         MessageKey = "AddressIdDoNotMatch"
	InvalidImageType            MessageKey = "InvalidImageType"
	ImageSizeExceeded           MessageKey = "ImageSizeExceeded"
	UnexpectedAPIResponse       MessageKey = "UnexpectedApiResponse"
)

var messages = map[MessageKey]string{
	NullPatientDTO:              "Patient data is null.",
	InvalidPatientName:          "Patient name is required and must be at least 3 characters long.",
	InvalidEmail:                "Email is required.",
	InvalidEmailFormat:          "The Email field is not a valid e-mail address.",
	InvalidPhone:                "Phone number is required.",
	InvalidPhoneNumberFormat:    "Phone number must contain between 10 and 15 digits only.",
	PhoneNumberTooShort:         "Phone number length is less than 10 digits.",
	MissingDobOrAge:             "Date of birth is required.",
	MissingAge:                  "Age is required.",
	AgeDobMismatch:              "Age and DOB input fields don't match.",
	InvalidDob:                  "Date of birth must not be in the future and age must be between 0 and 150.",
	InvalidGender:               "Gender is required.",
	InvalidPreferredStartTime:   "Preferred start time is required.",
	InvalidPreferredEndTime:     "Preferred end time is required.",
	InvalidPreferredTimeRange:   "Preferred start time must be earlier than end time.",
	InvalidCreatedBy:            "CreatedBy must be a positive user id.",
	InvalidLastModifiedBy:       "LastModifiedBy must be a positive user id.",
	InvalidStreetAddress:        "Street address is required.",
	InvalidClinicID:             "Preferred clinic id must be a positive number.",
	InvalidDoctorID:             "Preferred doctor id must be a positive number.",
	InvalidState:                "State is required.",
	InvalidCity:                 "City is required.",
	InvalidCountry:              "Country is required.",
	InvalidZipCode:              "Zip code is required.",
	MissingGuardianName:         "Guardian's name is required for patients under 18.",
	MissingGuardianPhone:        "Guardian's phone number is required for patients under 18.",
	MissingGuardianRelationship: "Guardian's relationship is required for patients under 18.",
	InvalidGuardianPhone:        "Guardian's phone number is not a valid phone number.",
	MissingGuardianID:           "Guardian id is required to update the patient's guardian.",
	GuardianWasNotFound:         "Guardian was not found.",
	DoctorNotFound:              "Doctor was not found",
	NoExistingPatient:           "Patient was not found",
	NoExistingPatientAddress:    "Patient address id is required.",
	PatientAddressNotFound:      "Patient address was not found.",
	AddressIDDoNotMatch:         "Patient address id does not match the patient's address.",
	InvalidImageType:            "Only .jpg, .jpeg and .png images are allowed.",
	ImageSizeExceeded:           "Image size exceeds the 5 MB limit.",
	UnexpectedAPIResponse:       "Unexpected response from the doctor directory",
}

// Message resolves a key against the catalog, falling back to the key itself.
func Message(key MessageKey) string {
	if m, ok := messages[key]; ok {
		return m
	}
	return string(key)
}

// BusinessError is a violated business rule. Detail carries the offending
// value, such as a doctor id or upstream status code, when one applies.
type BusinessError struct {
	Key     MessageKey
	Message string
	Detail  string
}

func (e *BusinessError) Error() string {
	if e.Detail != "" {
		return e.Message + " : " + e.Detail
	}
	return e.Message
}

func newBusinessError(key MessageKey) *BusinessError {
	return &BusinessError{Key: key, Message: Message(key)}
}

func newBusinessErrorf(key MessageKey, detail string) *BusinessError {
	return &BusinessError{Key: key, Message: Message(key), Detail: detail}
}

func unexpectedStatus(status int) *BusinessError {
	return newBusinessErrorf(UnexpectedAPIResponse, strconv.Itoa(status))
}

// AsBusinessError unwraps err to a *BusinessError.
func AsBusinessError(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsRule reports whether err is a business error for key.
func IsRule(err error, key MessageKey) bool {
	be, ok := AsBusinessError(err)
	return ok && be.Key == key
}
