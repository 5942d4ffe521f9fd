package patient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/connectmydoc/patients/pkg/pagination"
)

const multipartMemory = 8 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.POST("/patients", h.CreatePatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)
	api.PUT("/patients/:id/primary-clinic", h.AssignPrimaryClinic)
	api.PUT("/patients/:id/primary-doctor", h.AssignPrimaryDoctor)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	records, total, err := h.svc.ListPatients(c.Request().Context(), pg.PageNumber, pg.PageSize)
	if err != nil {
		return failure(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, pg))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return failure(err)
	}
	if rec == nil {
		return notFound(id)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	rec, err := bindRecord(c)
	if err != nil {
		return err
	}
	out, err := h.svc.CreatePatient(c.Request().Context(), rec)
	if err != nil {
		return failure(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rec, err := bindRecord(c)
	if err != nil {
		return err
	}
	if rec == nil {
		return echo.NewHTTPError(http.StatusBadRequest, Message(NullPatientDTO))
	}
	out, err := h.svc.UpdatePatient(c.Request().Context(), rec, id)
	if err != nil {
		return failure(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	deleted, err := h.svc.DeletePatient(c.Request().Context(), id)
	if err != nil {
		return failure(err)
	}
	if !deleted {
		return notFound(id)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Patient with id :%d deleted", id),
	})
}

type clinicAssignment struct {
	ClinicID int64 `json:"clinic_id"`
}

type doctorAssignment struct {
	DoctorID int64 `json:"doctor_id"`
}

func (h *Handler) AssignPrimaryClinic(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var body clinicAssignment
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.AssignPrimaryClinic(c.Request().Context(), id, body.ClinicID)
	if err != nil {
		return failure(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) AssignPrimaryDoctor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var body doctorAssignment
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.AssignPrimaryDoctor(c.Request().Context(), id, body.DoctorID)
	if err != nil {
		return failure(err)
	}
	return c.JSON(http.StatusOK, out)
}

// -- helpers --

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func notFound(id int64) error {
	return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("Patient with id :%d not found", id))
}

// failure maps service errors to HTTP errors. Business rules become 400
// with their key as code, except a missing patient which is 404.
func failure(err error) error {
	if be, ok := AsBusinessError(err); ok {
		status := http.StatusBadRequest
		if IsNotFound(err) {
			status = http.StatusNotFound
		}
		return echo.NewHTTPError(status, map[string]string{
			"code":    string(be.Key),
			"message": be.Error(),
		})
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func badPayload(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return echo.NewHTTPError(http.StatusBadRequest, "invalid patient payload: "+err.Error())
}

// bindRecord reads a PatientRecord from a JSON or form body. An empty JSON
// body or a literal null yields nil.
func bindRecord(c echo.Context) (*PatientRecord, error) {
	req := c.Request()
	ct := req.Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEMultipartForm) || strings.HasPrefix(ct, echo.MIMEApplicationForm) {
		return bindForm(req)
	}

	if req.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, badPayload(err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	var rec PatientRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, badPayload(err)
	}
	return &rec, nil
}

func bindForm(req *http.Request) (*PatientRecord, error) {
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if err := req.ParseMultipartForm(multipartMemory); err != nil {
			return nil, badPayload(err)
		}
	} else if err := req.ParseForm(); err != nil {
		return nil, badPayload(err)
	}

	f := formReader{req: req}
	rec := &PatientRecord{
		PatientID:                   f.int64Ptr("patient_id"),
		PatientName:                 f.str("patient_name"),
		Email:                       f.str("email"),
		Phone:                       f.str("phone"),
		Age:                         f.intPtr("age"),
		Dob:                         f.timestamp("dob"),
		Gender:                      f.str("gender"),
		PreferredStartTime:          f.timestamp("preferred_start_time"),
		PreferredEndTime:            f.timestamp("preferred_end_time"),
		CreatedDate:                 f.timestamp("created_date"),
		CreatedBy:                   f.integer("created_by"),
		LastModifiedDate:            f.timestamp("last_modified_date"),
		LastModifiedBy:              f.integer("last_modified_by"),
		PreferredClinicID:           f.integer("preferred_clinic_id"),
		PreferredDoctorID:           f.integer("preferred_doctor_id"),
		PatientAddressID:            f.int64Ptr("patient_address_id"),
		StreetAddress:               f.str("street_address"),
		City:                        f.str("city"),
		State:                       f.str("state"),
		Country:                     f.str("country"),
		ZipCode:                     f.str("zip_code"),
		PatientGuardianID:           f.int64Ptr("patient_guardian_id"),
		PatientGuardianName:         f.str("patient_guardian_name"),
		PatientGuardianPhoneNumber:  f.str("patient_guardian_phone_number"),
		PatientGuardianRelationship: f.str("patient_guardian_relationship"),
	}
	if f.err != nil {
		return nil, badPayload(f.err)
	}

	img, err := formImage(req)
	if err != nil {
		return nil, badPayload(err)
	}
	rec.Image = img
	return rec, nil
}

// formImage reads the optional "image" file. At most one byte more than
// MaxImageSize is read so oversized uploads still fail validation.
func formImage(req *http.Request) (*ImageUpload, error) {
	if req.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := req.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return &ImageUpload{FileName: header.Filename, Data: data}, nil
}

var formTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "15:04:05", "15:04"}

// formReader collects the first parse error while reading form fields.
type formReader struct {
	req *http.Request
	err error
}

func (f *formReader) str(name string) string {
	return strings.TrimSpace(f.req.FormValue(name))
}

func (f *formReader) integer(name string) int64 {
	v := f.str(name)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil && f.err == nil {
		f.err = fmt.Errorf("%s: not an integer", name)
	}
	return n
}

func (f *formReader) int64Ptr(name string) *int64 {
	if f.str(name) == "" {
		return nil
	}
	n := f.integer(name)
	return &n
}

func (f *formReader) intPtr(name string) *int {
	if f.str(name) == "" {
		return nil
	}
	n := int(f.integer(name))
	return &n
}

func (f *formReader) timestamp(name string) time.Time {
	v := f.str(name)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range formTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	if f.err == nil {
		f.err = fmt.Errorf("%s: unrecognised time %q", name, v)
	}
	return time.Time{}
}
