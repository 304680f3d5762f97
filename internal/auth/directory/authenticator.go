package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// ErrInvalidCredentials marks an explicit authentication rejection by the
// directory server, as opposed to a transport failure.
var ErrInvalidCredentials = errors.New("directory: invalid credentials")

// TransportError wraps dial, service-bind, and protocol failures so callers
// can distinguish an unreachable directory from rejected credentials.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("directory: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err originated from the directory transport.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Entry carries the directory attributes used for provisioning.
type Entry struct {
	DN         string
	Principal  string
	CommonName string
	Mail       string
}

// Options configures the Authenticator.
type Options struct {
	Timeout    time.Duration
	SkipVerify bool
}

// Authenticator performs directory binds to validate credentials and resolve
// the matching entry.
type Authenticator struct {
	cfg        Config
	timeout    time.Duration
	skipVerify bool
}

// NewAuthenticator constructs an authenticator for the provided configuration.
func NewAuthenticator(cfg Config, opts Options) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Authenticator{cfg: cfg, timeout: timeout, skipVerify: opts.SkipVerify}, nil
}

// Authenticate verifies the principal and password against the directory.
// It returns ErrInvalidCredentials on an explicit rejection and a
// TransportError on every connectivity or protocol failure.
func (a *Authenticator) Authenticate(ctx context.Context, principal, password string) error {
	if strings.TrimSpace(principal) == "" || password == "" {
		return ErrInvalidCredentials
	}

	conn, err := a.dial(ctx)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer conn.Close()

	if err := conn.Bind(a.cfg.BindDN, a.cfg.BindPassword); err != nil {
		return &TransportError{Err: fmt.Errorf("service bind: %w", err)}
	}

	if err := conn.Bind(principal, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return ErrInvalidCredentials
		}
		return &TransportError{Err: fmt.Errorf("user bind: %w", err)}
	}

	return nil
}

// FindEntry resolves the directory entry matching the principal via the
// configured login attribute. A nil entry without error means no match.
func (a *Authenticator) FindEntry(ctx context.Context, principal string) (*Entry, error) {
	conn, err := a.dial(ctx)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer conn.Close()

	if err := conn.Bind(a.cfg.BindDN, a.cfg.BindPassword); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("service bind: %w", err)}
	}

	filter := fmt.Sprintf("(%s=%s)", a.cfg.AttrLogin, ldap.EscapeFilter(principal))
	request := ldap.NewSearchRequest(
		a.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1,
		0,
		false,
		filter,
		[]string{a.cfg.AttrLogin, "userPrincipalName", "distinguishedName", a.cfg.AttrName, a.cfg.AttrEmail},
		nil,
	)

	result, err := conn.Search(request)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("search: %w", err)}
	}
	if len(result.Entries) == 0 {
		return nil, nil
	}

	found := result.Entries[0]
	entry := &Entry{
		DN:         found.DN,
		Principal:  found.GetAttributeValue("userPrincipalName"),
		CommonName: found.GetAttributeValue(a.cfg.AttrName),
		Mail:       found.GetAttributeValue(a.cfg.AttrEmail),
	}
	if entry.Principal == "" {
		entry.Principal = principal
	}

	return entry, nil
}

func (a *Authenticator) dial(ctx context.Context) (*ldap.Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := a.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}

	dialOpts := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: timeout})}
	if a.cfg.UseSSL {
		dialOpts = append(dialOpts, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: a.skipVerify}))
	}

	conn, err := ldap.DialURL(a.cfg.URL(), dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	conn.SetTimeout(timeout)
	return conn, nil
}

// SplitCommonName maps a space-delimited common name onto (last, first,
// middle). Token counts other than 1..3 leave every part blank; this is a
// best-effort heuristic, not a guarantee.
func SplitCommonName(cn string) (lastName, firstName, middleName string) {
	parts := strings.Fields(strings.TrimSpace(cn))
	switch len(parts) {
	case 1:
		return parts[0], "", ""
	case 2:
		return parts[0], parts[1], ""
	case 3:
		return parts[0], parts[1], parts[2]
	default:
		return "", "", ""
	}
}
