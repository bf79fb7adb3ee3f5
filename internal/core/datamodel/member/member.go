package member

import "time"

type Member struct {
	ID               int64     `gorm:"primaryKey"`
	Name             string    `gorm:"column:name;not null"`
	PhoneNumber      string    `gorm:"column:phone_number;size:20"`
	Email            string    `gorm:"column:email"`
	ShareCapitalPaid bool      `gorm:"column:share_capital_paid;not null;default:false"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Member) TableName() string {
	return "members"
}

type Vehicle struct {
	ID                 int64  `gorm:"primaryKey"`
	MemberID           int64  `gorm:"column:member_id;not null;index"`
	RegistrationNumber string `gorm:"column:registration_number;size:16;not null;uniqueIndex"`
}

func (Vehicle) TableName() string {
	return "vehicles"
}
