package directory

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/oitdesk/oitdesk/internal/models"
)

// Setting keys used by the administrative directory screen. Values are stored
// as opaque strings in the system settings table, usually JSON-encoded.
const (
	SettingHost         = "ldapHost"
	SettingPort         = "ldapPort"
	SettingSSL          = "ldapSSL"
	SettingUserDN       = "ldapUserDN"
	SettingUserPassword = "ldapUserPassword"
	SettingBaseDN       = "ldapBaseDN"
	SettingAttrLogin    = "ldapAttrLogin"
	SettingAttrEmail    = "ldapAttrEmail"
	SettingAttrName     = "ldapAttrName"
	SettingDomain       = "ldapDomain"
)

// DefaultDomain is appended to bare logins when no domain is configured.
const DefaultDomain = "OIT.INT"

// Config is the typed directory connection configuration extracted from the
// settings store.
type Config struct {
	Host         string
	Port         int
	UseSSL       bool
	BindDN       string
	BindPassword string
	BaseDN       string
	AttrLogin    string
	AttrEmail    string
	AttrName     string
	Domain       string
}

// URL renders the directory connection URL for the configured transport.
func (c Config) URL() string {
	scheme := "ldap"
	if c.UseSSL {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// Validate reports the first missing required field, if any.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("directory settings: %s is required", SettingHost)
	case c.Port <= 0:
		return fmt.Errorf("directory settings: %s is required", SettingPort)
	case c.BindDN == "":
		return fmt.Errorf("directory settings: %s is required", SettingUserDN)
	case c.BindPassword == "":
		return fmt.Errorf("directory settings: %s is required", SettingUserPassword)
	case c.BaseDN == "":
		return fmt.Errorf("directory settings: %s is required", SettingBaseDN)
	case c.AttrLogin == "":
		return fmt.Errorf("directory settings: %s is required", SettingAttrLogin)
	}
	return nil
}

// ParseSettings extracts the directory configuration from raw settings rows.
// Each value is JSON-decoded, falling back to the raw string, and coerced per
// field: strings trimmed, the SSL flag accepts common boolean spellings, and
// the port accepts numbers or numeric strings.
func ParseSettings(rows []models.SystemSetting) Config {
	values := make(map[string]any, len(rows))
	for _, row := range rows {
		values[row.Key] = decodeValue(row.Value)
	}

	cfg := Config{
		Host:         asString(values[SettingHost]),
		Port:         asPort(values[SettingPort]),
		UseSSL:       asBool(values[SettingSSL]),
		BindDN:       asString(values[SettingUserDN]),
		BindPassword: asString(values[SettingUserPassword]),
		BaseDN:       asString(values[SettingBaseDN]),
		AttrLogin:    asString(values[SettingAttrLogin]),
		AttrEmail:    asString(values[SettingAttrEmail]),
		AttrName:     asString(values[SettingAttrName]),
		Domain:       asString(values[SettingDomain]),
	}

	if cfg.AttrEmail == "" {
		cfg.AttrEmail = "mail"
	}
	if cfg.AttrName == "" {
		cfg.AttrName = "cn"
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}

	return cfg
}

// DerivePrincipal returns the login verbatim when it already carries a domain,
// otherwise qualifies it with the configured domain.
func (c Config) DerivePrincipal(login string) string {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		return login
	}
	return login + "@" + c.Domain
}

func decodeValue(raw string) any {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return raw
	}
	return decoded
}

func asString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case float64:
		if value == math.Trunc(value) {
			return strconv.FormatInt(int64(value), 10)
		}
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return ""
	}
}

func asBool(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		}
		return false
	case float64:
		return value != 0
	default:
		return false
	}
}

func asPort(v any) int {
	switch value := v.(type) {
	case float64:
		port := int(value)
		if port > 0 && port <= 65535 {
			return port
		}
		return 0
	case string:
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || port <= 0 || port > 65535 {
			return 0
		}
		return port
	default:
		return 0
	}
}
