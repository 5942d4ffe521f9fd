package patient

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nyaruka/phonenumbers"
)

const (
	minNameLength  = 3
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

var digitsPattern = regexp.MustCompile(`^\d+$`)

// ValidatePhone applies the canonical patient phone format: 10 to 15 digits
// with no separators or leading plus sign.
func ValidatePhone(phone string) error {
	if !digitsPattern.MatchString(phone) {
		return newBusinessError(InvalidPhoneNumberFormat)
	}
	if len(phone) < minPhoneDigits {
		return newBusinessError(PhoneNumberTooShort)
	}
	if len(phone) > maxPhoneDigits {
		return newBusinessError(InvalidPhoneNumberFormat)
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ValidateRequiredFields checks presence and format of every mandatory
// field, stopping at the first failure.
func ValidateRequiredFields(rec *PatientRecord) error {
	if rec == nil {
		return newBusinessError(NullPatientDTO)
	}

	name := strings.TrimSpace(rec.PatientName)
	checks := []struct {
		failed bool
		key    MessageKey
	}{
		{name == "" || utf8.RuneCountInString(name) < minNameLength, InvalidPatientName},
		{blank(rec.Email), InvalidEmail},
		{!IsValidEmail(rec.Email), InvalidEmailFormat},
		{blank(rec.Phone), InvalidPhone},
		{rec.Dob.IsZero(), MissingDobOrAge},
		{blank(rec.Gender), InvalidGender},
		{rec.PreferredStartTime.IsZero(), InvalidPreferredStartTime},
		{rec.PreferredEndTime.IsZero(), InvalidPreferredEndTime},
		{!timeOfDayBefore(rec.PreferredStartTime, rec.PreferredEndTime), InvalidPreferredTimeRange},
		{rec.CreatedBy <= 0, InvalidCreatedBy},
		{rec.LastModifiedBy <= 0, InvalidLastModifiedBy},
		{blank(rec.StreetAddress), InvalidStreetAddress},
		{rec.PreferredClinicID <= 0, InvalidClinicID},
		{rec.PreferredDoctorID <= 0, InvalidDoctorID},
		{blank(rec.State), InvalidState},
		{blank(rec.City), InvalidCity},
		{blank(rec.Country), InvalidCountry},
		{blank(rec.ZipCode), InvalidZipCode},
	}
	for _, c := range checks {
		if c.failed {
			return newBusinessError(c.key)
		}
	}
	return nil
}

// timeOfDayBefore compares only the clock part of a and b.
func timeOfDayBefore(a, b time.Time) bool {
	return clock(a) < clock(b)
}

func clock(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// ValidateGuardianFields requires a complete guardian whose phone number is
// possible in the helper's default region.
func (h *Helper) ValidateGuardianFields(rec *PatientRecord) error {
	if rec == nil {
		return newBusinessError(NullPatientDTO)
	}
	switch {
	case blank(rec.PatientGuardianName):
		return newBusinessError(MissingGuardianName)
	case blank(rec.PatientGuardianPhoneNumber):
		return newBusinessError(MissingGuardianPhone)
	case blank(rec.PatientGuardianRelationship):
		return newBusinessError(MissingGuardianRelationship)
	}

	num, err := phonenumbers.Parse(rec.PatientGuardianPhoneNumber, h.region)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return newBusinessErrorf(InvalidGuardianPhone, rec.PatientGuardianPhoneNumber)
	}
	return nil
}
