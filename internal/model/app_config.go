package model

import "time"

// Well-known app_config keys
const (
	ConfigAdminPassword      = "admin_password"
	ConfigUserPassword       = "user_password"
	ConfigLastGlobalLogoutAt = "last_global_logout_timestamp"
)

// AppConfig is an opaque key/value row. Password values hold bcrypt hashes.
type AppConfig struct {
	Key       string    `gorm:"type:varchar(100);primaryKey" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AppConfig) TableName() string {
	return "app_config"
}
