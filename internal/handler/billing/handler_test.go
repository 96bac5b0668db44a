package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinic-api/internal/model"
	"github.com/clinicore/clinic-api/internal/repository/memory"
	"github.com/clinicore/clinic-api/internal/service/audit"
	billingService "github.com/clinicore/clinic-api/internal/service/billing"
	"github.com/clinicore/clinic-api/internal/service/directory"
	"github.com/clinicore/clinic-api/pkg/lock"
	"github.com/clinicore/clinic-api/pkg/logger"
	"github.com/clinicore/clinic-api/pkg/messaging"
	"github.com/clinicore/clinic-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("clinic", "billing_handler_test")

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type env struct {
	router *gin.Engine
	store  *memory.Store
	apt    *model.Appointment
}

// newEnv seeds one completed visit worth 87.50 before adjustments.
func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	doctor := &model.Doctor{
		ID:              uuid.New(),
		Name:            "Dr. Mehta",
		ConsultationFee: dec("50.00"),
		Available:       true,
	}
	store.AddDoctor(doctor)
	patient := &model.Patient{ID: uuid.New(), Name: "Asha Rao"}
	store.AddPatient(patient)

	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	apt := &model.Appointment{
		Base:      model.Base{ID: uuid.New()},
		Code:      "APT" + uuid.NewString()[:8],
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		Date:      start.Truncate(24 * time.Hour),
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Type:      model.AppointmentTypeRegular,
		Priority:  model.AppointmentPriorityNormal,
		Status:    model.AppointmentStatusScheduled,
	}
	require.NoError(t, store.Appointments().Create(context.Background(), apt))
	apt.Status = model.AppointmentStatusCompleted
	require.NoError(t, store.Appointments().UpdateStatus(context.Background(), apt))

	store.SetPrescriptionCharges(apt.ID, []model.ChargeLine{
		{Description: "paracetamol 500mg", Quantity: 5, UnitPrice: dec("2.50")},
	})
	store.SetLabCharges(apt.ID, []model.ChargeLine{
		{Description: "complete blood count", Quantity: 1, UnitPrice: dec("25.00")},
	})

	l := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	auditor := audit.NewService(messaging.NewLogBroker(l.Zerolog()), l, testMetrics)
	svc := billingService.NewService(
		store.Bills(),
		store.Appointments(),
		store.Charges(),
		directory.NewService(store.Directory(), time.Minute),
		lock.NewLocalLocker(),
		auditor,
		testMetrics,
		14,
	)

	router := gin.New()
	NewHandler(svc).RegisterRoutes(router.Group("/api/v1"))
	return &env{router: router, store: store, apt: apt}
}

func (e *env) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

func (e *env) generateBill(t *testing.T) *model.BillResponse {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/v1/bills", map[string]interface{}{
		"appointment_id":   e.apt.ID,
		"discount_percent": "10",
		"tax_percent":      "5",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var bill model.BillResponse
	decodeData(t, w, &bill)
	return &bill
}

func TestGenerateBillEndpoint(t *testing.T) {
	e := newEnv(t)

	bill := e.generateBill(t)
	assert.Equal(t, model.BillStatusPending, bill.Bill.Status)
	assert.True(t, bill.Subtotal.Equal(dec("87.50")), "subtotal %s", bill.Subtotal)
	assert.True(t, bill.Total.Equal(dec("83.13")), "total %s", bill.Total)
	assert.True(t, bill.Balance.Equal(dec("83.13")), "balance %s", bill.Balance)

	// One bill per appointment.
	w := e.do(t, http.MethodPost, "/api/v1/bills", map[string]interface{}{
		"appointment_id": e.apt.ID,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBillEndpoint(t *testing.T) {
	e := newEnv(t)
	bill := e.generateBill(t)

	w := e.do(t, http.MethodGet, "/api/v1/bills/"+bill.Bill.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/bills/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplyPaymentEndpoint(t *testing.T) {
	e := newEnv(t)
	bill := e.generateBill(t)
	base := "/api/v1/bills/" + bill.Bill.ID.String()

	w := e.do(t, http.MethodPost, base+"/payments", map[string]interface{}{
		"amount": "40.00", "method": "cash",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated model.BillResponse
	decodeData(t, w, &updated)
	assert.Equal(t, model.BillStatusPartial, updated.Bill.Status)
	assert.True(t, updated.Balance.Equal(dec("43.13")), "balance %s", updated.Balance)

	w = e.do(t, http.MethodPost, base+"/payments", map[string]interface{}{
		"amount": "43.13", "method": "upi",
	})
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &updated)
	assert.Equal(t, model.BillStatusPaid, updated.Bill.Status)
	assert.True(t, updated.Balance.IsZero(), "balance %s", updated.Balance)

	var payments []model.PaymentTransaction
	w = e.do(t, http.MethodGet, base+"/payments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &payments)
	assert.Len(t, payments, 2)
}

func TestApplyPaymentEndpointRejectsBadInput(t *testing.T) {
	e := newEnv(t)
	bill := e.generateBill(t)
	base := "/api/v1/bills/" + bill.Bill.ID.String()

	w := e.do(t, http.MethodPost, base+"/payments", map[string]interface{}{
		"amount": "-5.00", "method": "cash",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, base+"/payments", map[string]interface{}{
		"amount": "5.00", "method": "barter",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
