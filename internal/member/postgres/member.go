package postgres

import (
	"context"
	"errors"
	"fmt"

	memberDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/member"
	"github.com/frahmantamala/sacco-management/internal/member"
	"gorm.io/gorm"
)

// MemberRepository is a read-only view over members and their vehicles.
type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) GetMember(ctx context.Context, id int64) (*memberDatamodel.Member, error) {
	var m memberDatamodel.Member
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, member.ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member %d: %w", id, err)
	}
	return &m, nil
}

func (r *MemberRepository) GetVehicle(ctx context.Context, id int64) (*memberDatamodel.Vehicle, error) {
	var v memberDatamodel.Vehicle
	if err := r.db.WithContext(ctx).First(&v, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, member.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle %d: %w", id, err)
	}
	return &v, nil
}
