package directory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oitdesk/oitdesk/internal/models"
)

func settingsRows(values map[string]string) []models.SystemSetting {
	rows := make([]models.SystemSetting, 0, len(values))
	for key, value := range values {
		rows = append(rows, models.SystemSetting{Key: key, Value: value})
	}
	return rows
}

func TestParseSettingsCoercion(t *testing.T) {
	cfg := ParseSettings(settingsRows(map[string]string{
		SettingHost:         `"dc01.oit.int"`,
		SettingPort:         `636`,
		SettingSSL:          `"yes"`,
		SettingUserDN:       `"cn=svc,dc=oit,dc=int"`,
		SettingUserPassword: `"secret"`,
		SettingBaseDN:       `"dc=oit,dc=int"`,
		SettingAttrLogin:    `"userPrincipalName"`,
	}))

	require.Equal(t, "dc01.oit.int", cfg.Host)
	require.Equal(t, 636, cfg.Port)
	require.True(t, cfg.UseSSL)
	require.Equal(t, "ldaps://dc01.oit.int:636", cfg.URL())
	require.NoError(t, cfg.Validate())
}

func TestParseSettingsPortAsString(t *testing.T) {
	cfg := ParseSettings(settingsRows(map[string]string{
		SettingPort: `"389"`,
	}))
	require.Equal(t, 389, cfg.Port)

	cfg = ParseSettings(settingsRows(map[string]string{
		SettingPort: `"not-a-port"`,
	}))
	require.Zero(t, cfg.Port)
}

func TestParseSettingsRawStringFallback(t *testing.T) {
	// Values that are not valid JSON fall back to the raw string.
	cfg := ParseSettings(settingsRows(map[string]string{
		SettingHost: `dc01.oit.int`,
		SettingSSL:  `false`,
	}))
	require.Equal(t, "dc01.oit.int", cfg.Host)
	require.False(t, cfg.UseSSL)
}

func TestParseSettingsDefaults(t *testing.T) {
	cfg := ParseSettings(nil)
	require.Equal(t, "mail", cfg.AttrEmail)
	require.Equal(t, "cn", cfg.AttrName)
	require.Equal(t, DefaultDomain, cfg.Domain)
}

func TestValidateReportsMissingFields(t *testing.T) {
	complete := map[string]string{
		SettingHost:         `"dc01"`,
		SettingPort:         `389`,
		SettingUserDN:       `"cn=svc"`,
		SettingUserPassword: `"secret"`,
		SettingBaseDN:       `"dc=oit"`,
		SettingAttrLogin:    `"uid"`,
	}

	require.NoError(t, ParseSettings(settingsRows(complete)).Validate())

	for _, missing := range []string{
		SettingHost, SettingPort, SettingUserDN,
		SettingUserPassword, SettingBaseDN, SettingAttrLogin,
	} {
		partial := make(map[string]string, len(complete))
		for k, v := range complete {
			if k != missing {
				partial[k] = v
			}
		}
		require.Error(t, ParseSettings(settingsRows(partial)).Validate(), "missing %s", missing)
	}
}

func TestDerivePrincipal(t *testing.T) {
	cfg := ParseSettings(nil)
	require.Equal(t, "alice@OIT.INT", cfg.DerivePrincipal("alice"))
	require.Equal(t, "alice@corp.example.com", cfg.DerivePrincipal("alice@corp.example.com"))

	cfg = ParseSettings(settingsRows(map[string]string{SettingDomain: `"corp.local"`}))
	require.Equal(t, "bob@corp.local", cfg.DerivePrincipal("bob"))
}

func TestSplitCommonName(t *testing.T) {
	last, first, middle := SplitCommonName("Иванов Иван Иванович")
	require.Equal(t, "Иванов", last)
	require.Equal(t, "Иван", first)
	require.Equal(t, "Иванович", middle)

	last, first, middle = SplitCommonName("Иванов Иван")
	require.Equal(t, "Иванов", last)
	require.Equal(t, "Иван", first)
	require.Empty(t, middle)

	last, first, middle = SplitCommonName("Иванов")
	require.Equal(t, "Иванов", last)
	require.Empty(t, first)
	require.Empty(t, middle)

	last, first, middle = SplitCommonName("one two three four")
	require.Empty(t, last)
	require.Empty(t, first)
	require.Empty(t, middle)
}
