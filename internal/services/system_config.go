package services

import (
	"errors"
	"strconv"
	"strings"

	"github.com/aranticlabs/bugpin/backend/internal/config"
	"github.com/aranticlabs/bugpin/backend/internal/models"
	"gorm.io/gorm"
)

type SystemConfigService struct {
	db *gorm.DB
}

func NewSystemConfigService(db *gorm.DB) *SystemConfigService {
	return &SystemConfigService{db: db}
}

func (s *SystemConfigService) Get(key string) (string, error) {
	var cfg models.SystemConfig
	if err := s.db.Where("`key` = ?", key).First(&cfg).Error; err != nil {
		return "", err
	}
	return cfg.Value, nil
}

func (s *SystemConfigService) GetWithDefault(key, defaultValue string) string {
	value, err := s.Get(key)
	if err != nil {
		return defaultValue
	}
	return value
}

func (s *SystemConfigService) Set(key, value string) error {
	var cfg models.SystemConfig
	err := s.db.Where("`key` = ?", key).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		cfg = models.SystemConfig{
			Key:   key,
			Value: value,
		}
		return s.db.Create(&cfg).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&cfg).Update("value", value).Error
}

// PublicBaseURL returns the externally reachable base URL used to build
// webhook callback URLs, preferring the runtime setting over the static
// config file. Empty means the deployment has no public address yet.
func (s *SystemConfigService) PublicBaseURL() string {
	if v := strings.TrimSpace(s.GetWithDefault("public_base_url", "")); v != "" {
		return v
	}
	if config.GlobalConfig != nil {
		return strings.TrimSpace(config.GlobalConfig.Server.PublicBaseURL)
	}
	return ""
}

func (s *SystemConfigService) GetByGroup(group string) ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	if err := s.db.Where("`group` = ?", group).Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

type LDAPConfigResponse struct {
	Enabled     bool   `json:"enabled"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	BaseDN      string `json:"base_dn"`
	BindDN      string `json:"bind_dn"`
	UserFilter  string `json:"user_filter"`
	UseSSL      bool   `json:"use_ssl"`
	PasswordSet bool   `json:"password_set"`
}

func (s *SystemConfigService) GetLDAPConfig() *LDAPConfigResponse {
	port, _ := strconv.Atoi(s.GetWithDefault("ldap_port", "389"))
	return &LDAPConfigResponse{
		Enabled:     s.GetWithDefault("ldap_enabled", "false") == "true",
		Host:        s.GetWithDefault("ldap_host", ""),
		Port:        port,
		BaseDN:      s.GetWithDefault("ldap_base_dn", ""),
		BindDN:      s.GetWithDefault("ldap_bind_dn", ""),
		UserFilter:  s.GetWithDefault("ldap_user_filter", "(uid=%s)"),
		UseSSL:      s.GetWithDefault("ldap_use_ssl", "false") == "true",
		PasswordSet: s.GetWithDefault("ldap_bind_password", "") != "",
	}
}

type AuthSessionConfigResponse struct {
	AccessTokenExpireHours  int `json:"access_token_expire_hours"`
	RefreshTokenExpireHours int `json:"refresh_token_expire_hours"`
}

func (s *SystemConfigService) GetAuthSessionConfig() *AuthSessionConfigResponse {
	access, _ := strconv.Atoi(s.GetWithDefault("auth_access_token_expire_hours", "24"))
	refresh, _ := strconv.Atoi(s.GetWithDefault("auth_refresh_token_expire_hours", "720"))
	return &AuthSessionConfigResponse{
		AccessTokenExpireHours:  access,
		RefreshTokenExpireHours: refresh,
	}
}

type UpdateAuthSessionConfigRequest struct {
	AccessTokenExpireHours  *int `json:"access_token_expire_hours"`
	RefreshTokenExpireHours *int `json:"refresh_token_expire_hours"`
}

func (s *SystemConfigService) UpdateAuthSessionConfig(req *UpdateAuthSessionConfigRequest) error {
	if req.AccessTokenExpireHours != nil {
		if *req.AccessTokenExpireHours <= 0 {
			return errors.New("access token expire hours must be positive")
		}
		if err := s.Set("auth_access_token_expire_hours", strconv.Itoa(*req.AccessTokenExpireHours)); err != nil {
			return err
		}
	}
	if req.RefreshTokenExpireHours != nil {
		if *req.RefreshTokenExpireHours <= 0 {
			return errors.New("refresh token expire hours must be positive")
		}
		if err := s.Set("auth_refresh_token_expire_hours", strconv.Itoa(*req.RefreshTokenExpireHours)); err != nil {
			return err
		}
	}
	return nil
}

type SyncSettingsResponse struct {
	PublicBaseURL string `json:"public_base_url"`
	ReconcileCron string `json:"reconcile_cron"`
}

func (s *SystemConfigService) GetSyncSettings() *SyncSettingsResponse {
	return &SyncSettingsResponse{
		PublicBaseURL: s.PublicBaseURL(),
		ReconcileCron: s.GetWithDefault("sync_reconcile_cron", defaultReconcileCron),
	}
}

type UpdateSyncSettingsRequest struct {
	PublicBaseURL *string `json:"public_base_url"`
	ReconcileCron *string `json:"reconcile_cron"`
}

// UpdateSyncSettings persists sync tuning. A cron change takes effect on
// the next scheduler restart.
func (s *SystemConfigService) UpdateSyncSettings(req *UpdateSyncSettingsRequest) error {
	if req.PublicBaseURL != nil {
		if err := s.Set("public_base_url", strings.TrimSpace(*req.PublicBaseURL)); err != nil {
			return err
		}
	}
	if req.ReconcileCron != nil {
		if err := s.Set("sync_reconcile_cron", strings.TrimSpace(*req.ReconcileCron)); err != nil {
			return err
		}
	}
	return nil
}

type UpdateLDAPConfigRequest struct {
	Enabled      *bool   `json:"enabled"`
	Host         *string `json:"host"`
	Port         *int    `json:"port"`
	BaseDN       *string `json:"base_dn"`
	BindDN       *string `json:"bind_dn"`
	BindPassword *string `json:"bind_password"`
	UserFilter   *string `json:"user_filter"`
	UseSSL       *bool   `json:"use_ssl"`
}

func (s *SystemConfigService) UpdateLDAPConfig(req *UpdateLDAPConfigRequest) error {
	if req.Enabled != nil {
		if err := s.Set("ldap_enabled", strconv.FormatBool(*req.Enabled)); err != nil {
			return err
		}
	}
	if req.Host != nil {
		if err := s.Set("ldap_host", *req.Host); err != nil {
			return err
		}
	}
	if req.Port != nil {
		if err := s.Set("ldap_port", strconv.Itoa(*req.Port)); err != nil {
			return err
		}
	}
	if req.BaseDN != nil {
		if err := s.Set("ldap_base_dn", *req.BaseDN); err != nil {
			return err
		}
	}
	if req.BindDN != nil {
		if err := s.Set("ldap_bind_dn", *req.BindDN); err != nil {
			return err
		}
	}
	if req.BindPassword != nil && *req.BindPassword != "" {
		if err := s.Set("ldap_bind_password", *req.BindPassword); err != nil {
			return err
		}
	}
	if req.UserFilter != nil {
		if err := s.Set("ldap_user_filter", *req.UserFilter); err != nil {
			return err
		}
	}
	if req.UseSSL != nil {
		if err := s.Set("ldap_use_ssl", strconv.FormatBool(*req.UseSSL)); err != nil {
			return err
		}
	}
	return nil
}
