package auth

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	apperrors "github.com/frahmantamala/sacco-management/internal"
	"github.com/frahmantamala/sacco-management/internal/transport"
	"github.com/frahmantamala/sacco-management/pkg/logger"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
)

// Middleware authenticates bearer tokens and enforces role and ownership
// checks on member and vehicle scoped routes.
type Middleware struct {
	*transport.BaseHandler
	validator TokenValidator
}

func NewMiddleware(base *transport.BaseHandler, validator TokenValidator) *Middleware {
	return &Middleware{BaseHandler: base, validator: validator}
}

func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.ExtractTokenFromHeader(r)
		if token == "" {
			m.WriteAppError(w, apperrors.NewUnauthorizedError("missing bearer token", apperrors.ErrCodeInvalidToken))
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				m.WriteAppError(w, apperrors.ErrTokenExpired)
				return
			}
			m.WriteAppError(w, apperrors.ErrInvalidToken)
			return
		}

		p := &Principal{MemberID: claims.MemberID, Role: claims.Role}
		ctx := ContextWithPrincipal(r.Context(), p)
		ctx = logger.With(ctx, "member_id", p.MemberID, "role", p.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				m.WriteAppError(w, apperrors.ErrInvalidToken)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.Logger.WarnContext(r.Context(), "access denied: role not permitted",
				"member_id", p.MemberID,
				"role", p.Role,
				"required_roles", roles)
			m.WriteAppError(w, apperrors.NewForbiddenError("insufficient role", apperrors.ErrCodeInsufficientRole))
		})
	}
}

// RequireMemberAccess lets operators through and members only onto their own
// member_id path parameter.
func (m *Middleware) RequireMemberAccess(param string) func(http.Handler) http.Handler {
	return m.requireOwnership(func(r *http.Request) (int64, error) {
		return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	})
}

// RequireVehicleAccess resolves the vehicle's owner before applying the same
// rule. Unknown vehicles are refused rather than reported as missing.
func (m *Middleware) RequireVehicleAccess(db *sqlx.DB, param string) func(http.Handler) http.Handler {
	query := db.Rebind("SELECT member_id FROM vehicles WHERE id = ?")
	return m.requireOwnership(func(r *http.Request) (int64, error) {
		vehicleID, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
		if err != nil {
			return 0, err
		}
		var ownerID int64
		if err := db.GetContext(r.Context(), &ownerID, query, vehicleID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, ErrForbidden
			}
			return 0, err
		}
		return ownerID, nil
	})
}

func (m *Middleware) requireOwnership(owner func(r *http.Request) (int64, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				m.WriteAppError(w, apperrors.ErrInvalidToken)
				return
			}
			if p.IsOperator() {
				next.ServeHTTP(w, r)
				return
			}

			ownerID, err := owner(r)
			if err != nil {
				var numErr *strconv.NumError
				switch {
				case errors.As(err, &numErr):
					m.WriteAppError(w, apperrors.NewValidationError("invalid path parameter", apperrors.ErrCodeValidationFailed))
				case errors.Is(err, ErrForbidden):
					m.WriteAppError(w, apperrors.ErrUnauthorizedAccess)
				default:
					m.Logger.ErrorContext(r.Context(), "ownership lookup failed", "error", err)
					m.WriteAppError(w, err)
				}
				return
			}

			if !p.CanAccessMember(ownerID) {
				m.Logger.WarnContext(r.Context(), "access denied: not the owner", "member_id", p.MemberID, "owner_id", ownerID)
				m.WriteAppError(w, apperrors.ErrUnauthorizedAccess)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
