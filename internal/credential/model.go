package credential

import "time"

// Credential is the stored OAuth token pair for one connected account,
// keyed by (tenant, platform). Token strings are opaque here; only the
// refresher ever interprets them.
type Credential struct {
	ID string `gorm:"primaryKey;size:26"`

	TenantID string `gorm:"size:26;not null;index:uniq_cred_tenant_platform,unique,priority:1"`
	Platform string `gorm:"type:varchar(32);not null;index:uniq_cred_tenant_platform,unique,priority:2"`

	AccessToken string `gorm:"type:text;not null"`

	// Absent on platforms that issue long-lived tokens without refresh.
	RefreshToken *string `gorm:"type:text"`

	// Absent means the access token does not expire.
	ExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Credential) TableName() string { return "platform_credentials" }

// ExpiringWithin reports whether the token expires before now+grace.
func (c *Credential) ExpiringWithin(now time.Time, grace time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(grace).Before(*c.ExpiresAt)
}
