package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/vendorportal_backend/config"
)

// TenantAccessGrant authorizes an employee of one tenant to submit expense
// claims billed to another tenant. Without an active grant the cross-tenant
// gate blocks the claim.
type TenantAccessGrant struct {
	ID               int        `gorm:"primary_key" json:"id"`
	BusinessId       string     `gorm:"size:64;not null;index:uniq_tenant_grant,unique" json:"business_id"`
	EmployeeId       int        `gorm:"not null;index:uniq_tenant_grant,unique" json:"employee_id"`
	TargetBusinessId string     `gorm:"size:64;not null;index:uniq_tenant_grant,unique" json:"target_business_id"`
	GrantedBy        int        `gorm:"not null" json:"granted_by"`
	IsActive         *bool      `gorm:"not null;default:true" json:"is_active"`
	ExpiresAt        *time.Time `json:"expires_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (g TenantAccessGrant) GetBusinessId() string {
	return g.BusinessId
}

// HasActiveTenantGrant reports whether the employee of homeBusinessId holds
// a live grant toward targetBusinessId. Expired grants do not count even
// when still flagged active.
func HasActiveTenantGrant(ctx context.Context, homeBusinessId string, employeeId int, targetBusinessId string) (bool, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&TenantAccessGrant{}).
		Where("business_id = ? AND employee_id = ? AND target_business_id = ? AND is_active = true", homeBusinessId, employeeId, targetBusinessId).
		Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
