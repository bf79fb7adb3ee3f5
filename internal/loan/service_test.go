package loan_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	apperrors "github.com/frahmantamala/sacco-management/internal"
	"github.com/frahmantamala/sacco-management/internal/auth"
	loanDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/loan"
	"github.com/frahmantamala/sacco-management/internal/eligibility"
	"github.com/frahmantamala/sacco-management/internal/loan"
	"github.com/frahmantamala/sacco-management/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

func TestLoan(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Loan Suite")
}

type mockRepository struct {
	loans       map[int64]*loanDatamodel.Loan
	nextID      int64
	outstanding int64
	issueErr    error
	createErr   error
}

func newMockRepository() *mockRepository {
	return &mockRepository{loans: map[int64]*loanDatamodel.Loan{}, nextID: 1}
}

func (m *mockRepository) Create(ctx context.Context, l *loanDatamodel.Loan) error {
	if m.createErr != nil {
		return m.createErr
	}
	l.ID = m.nextID
	m.nextID++
	m.loans[l.ID] = l
	return nil
}

func (m *mockRepository) GetByID(ctx context.Context, id int64) (*loanDatamodel.Loan, error) {
	l, ok := m.loans[id]
	if !ok {
		return nil, loan.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *mockRepository) ListByVehicle(ctx context.Context, vehicleID int64) ([]*loanDatamodel.Loan, error) {
	var out []*loanDatamodel.Loan
	for _, l := range m.loans {
		if l.VehicleID == vehicleID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockRepository) CountOutstanding(ctx context.Context, vehicleID int64) (int64, error) {
	return m.outstanding, nil
}

func (m *mockRepository) Issue(ctx context.Context, loanID int64, amount decimal.Decimal, issuedAt time.Time) error {
	if m.issueErr != nil {
		return m.issueErr
	}
	l := m.loans[loanID]
	l.AmountIssued = amount
	l.AmountDue = amount
	l.IssuedAt = &issuedAt
	return nil
}

type stubEligibility struct {
	report *eligibility.Report
	err    error
}

func (s *stubEligibility) Check(ctx context.Context, memberID, vehicleID int64) (*eligibility.Report, error) {
	return s.report, s.err
}

var _ = Describe("Service", func() {
	var (
		repo    *mockRepository
		checker *stubEligibility
		service *loan.Service
		ctx     context.Context
		logger  *slog.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		repo = newMockRepository()
		checker = &stubEligibility{report: &eligibility.Report{Eligible: true, Reason: eligibility.ReasonEligible}}
		service = loan.NewService(repo, checker, logger)
	})

	apply := loan.ApplyLoanDTO{VehicleID: 3, LoanType: loanDatamodel.TypeNormal, Amount: decimal.NewFromInt(10000)}

	Describe("Apply", func() {
		It("records a pending loan for an eligible member", func() {
			l, err := service.Apply(ctx, 1, apply)

			Expect(err).NotTo(HaveOccurred())
			Expect(l.Status).To(Equal(loan.StatusPendingApproval))
			Expect(l.AmountApplied.Equal(decimal.NewFromInt(10000))).To(BeTrue())
			Expect(l.AmountDue.IsZero()).To(BeTrue())
			Expect(repo.loans).To(HaveLen(1))
		})

		It("refuses an ineligible member with the evaluator's reason", func() {
			checker.report = &eligibility.Report{Eligible: false, Reason: eligibility.ReasonShareCapitalNotPaid}

			_, err := service.Apply(ctx, 1, apply)

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeNotEligible))
			Expect(appErr.Message).To(Equal("Share capital not paid"))
			Expect(repo.loans).To(BeEmpty())
		})

		It("rejects an unknown loan type", func() {
			dto := apply
			dto.LoanType = "holiday"

			_, err := service.Apply(ctx, 1, dto)

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("maps an unknown vehicle to not found", func() {
			checker.err = eligibility.ErrVehicleNotFound

			_, err := service.Apply(ctx, 1, apply)

			Expect(errors.Is(err, apperrors.ErrVehicleNotFound)).To(BeTrue())
		})
	})

	Describe("Approve", func() {
		var pending *loanDatamodel.Loan

		BeforeEach(func() {
			pending = loan.NewLoan(1, 3, loanDatamodel.TypeNormal, decimal.NewFromInt(10000))
			Expect(repo.Create(ctx, pending)).To(Succeed())
		})

		It("issues the applied amount by default", func() {
			l, err := service.Approve(ctx, pending.ID, loan.ApproveLoanDTO{})

			Expect(err).NotTo(HaveOccurred())
			Expect(l.Status).To(Equal(loan.StatusOutstanding))
			Expect(l.AmountDue.Equal(decimal.NewFromInt(10000))).To(BeTrue())
			Expect(l.IssuedAt).NotTo(BeNil())
		})

		It("issues an operator-adjusted amount", func() {
			amount := decimal.NewFromInt(8000)

			l, err := service.Approve(ctx, pending.ID, loan.ApproveLoanDTO{Amount: &amount})

			Expect(err).NotTo(HaveOccurred())
			Expect(l.AmountIssued.Equal(amount)).To(BeTrue())
		})

		It("refuses while the vehicle has an outstanding loan", func() {
			repo.outstanding = 1

			_, err := service.Approve(ctx, pending.ID, loan.ApproveLoanDTO{})

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeOutstandingLoan))
			Expect(appErr.StatusCode).To(Equal(http.StatusConflict))
		})

		It("refuses a loan already issued", func() {
			_, err := service.Approve(ctx, pending.ID, loan.ApproveLoanDTO{})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Approve(ctx, pending.ID, loan.ApproveLoanDTO{})

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeLoanAlreadyIssued))
		})

		It("maps a lost issue race to a conflict", func() {
			repo.issueErr = loan.ErrOutstandingLoan

			_, err := service.Approve(ctx, pending.ID, loan.ApproveLoanDTO{})

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeOutstandingLoan))
		})

		It("returns not found for an unknown loan", func() {
			_, err := service.Approve(ctx, 999, loan.ApproveLoanDTO{})

			Expect(errors.Is(err, apperrors.ErrLoanNotFound)).To(BeTrue())
		})
	})

	Describe("Handler", func() {
		var router chi.Router

		BeforeEach(func() {
			handler := loan.NewHandler(transport.NewBaseHandler(logger), service)
			router = chi.NewRouter()
			router.Post("/loans", handler.Apply)
			router.Patch("/loans/{loan_id}/approve", handler.Approve)
			router.Get("/vehicles/{vehicle_id}/loans", handler.ListByVehicle)
		})

		It("creates a loan for the authenticated member", func() {
			body, _ := json.Marshal(map[string]interface{}{"vehicle_id": 3, "loan_type": "emergency", "amount": "5000"})
			req := httptest.NewRequest(http.MethodPost, "/loans", bytes.NewReader(body))
			req = req.WithContext(auth.ContextWithPrincipal(req.Context(), &auth.Principal{MemberID: 1, Role: auth.RoleMember}))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusCreated))
			var l loan.Loan
			Expect(json.NewDecoder(w.Body).Decode(&l)).To(Succeed())
			Expect(l.MemberID).To(Equal(int64(1)))
			Expect(l.LoanType).To(Equal("emergency"))
		})

		It("rejects an unauthenticated application", func() {
			req := httptest.NewRequest(http.MethodPost, "/loans", bytes.NewReader([]byte(`{}`)))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})

		It("approves without a body", func() {
			pending := loan.NewLoan(1, 3, loanDatamodel.TypeNormal, decimal.NewFromInt(700))
			Expect(repo.Create(ctx, pending)).To(Succeed())
			req := httptest.NewRequest(http.MethodPatch, "/loans/1/approve", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("lists loans for a vehicle", func() {
			Expect(repo.Create(ctx, loan.NewLoan(1, 3, loanDatamodel.TypeNormal, decimal.NewFromInt(700)))).To(Succeed())
			w := httptest.NewRecorder()

			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/vehicles/3/loans", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp loan.LoansResponse
			Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
			Expect(resp.Loans).To(HaveLen(1))
		})
	})
})
