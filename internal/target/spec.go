// Package target opens and describes the caller-supplied databases that generated SQL
// runs against.
package target

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Port accepts either a JSON number or a numeric JSON string.
type Port int

func (p *Port) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			*p = 0
			return nil
		}
		data = []byte(text)
	}
	value, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("port must be an integer: %w", err)
	}
	*p = Port(value)
	return nil
}

// ConnectionSpec carries the caller's connection parameters for a single request.
// It is never persisted and its password never reaches a log line.
type ConnectionSpec struct {
	Driver   string `json:"driver,omitempty"`
	Host     string `json:"host"`
	Port     Port   `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// IsZero reports whether the spec names nothing to connect to. A driver alone does not count.
func (s ConnectionSpec) IsZero() bool {
	return strings.TrimSpace(s.Host) == "" &&
		s.Port == 0 &&
		strings.TrimSpace(s.User) == "" &&
		s.Password == "" &&
		strings.TrimSpace(s.Database) == ""
}

// WithDefaults fills in the driver and the driver's default port.
func (s ConnectionSpec) WithDefaults(defaultDriver string) ConnectionSpec {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	if s.Driver == "" {
		s.Driver = strings.ToLower(strings.TrimSpace(defaultDriver))
	}
	if s.Driver == "" {
		s.Driver = DriverMySQL
	}
	s.Host = strings.TrimSpace(s.Host)
	s.User = strings.TrimSpace(s.User)
	s.Database = strings.TrimSpace(s.Database)
	if s.Port == 0 {
		if dialect, err := DialectFor(s.Driver); err == nil {
			s.Port = Port(dialect.DefaultPort())
		}
	}
	return s
}

func (s ConnectionSpec) Validate() error {
	dialect, err := DialectFor(s.Driver)
	if err != nil {
		return err
	}
	if !dialect.Networked() {
		return nil
	}
	var missing []string
	if strings.TrimSpace(s.Host) == "" {
		missing = append(missing, "host")
	}
	if s.Port <= 0 || s.Port > 65535 {
		missing = append(missing, "port")
	}
	if strings.TrimSpace(s.User) == "" {
		missing = append(missing, "user")
	}
	if strings.TrimSpace(s.Database) == "" {
		missing = append(missing, "database")
	}
	if len(missing) > 0 {
		return errors.New("connection " + strings.Join(missing, ", ") + " required")
	}
	return nil
}

// Key identifies a spec for handle reuse. It covers every field, including the password.
func (s ConnectionSpec) Key() string {
	sum := sha256.New()
	for _, part := range []string{s.Driver, s.Host, strconv.Itoa(int(s.Port)), s.User, s.Password, s.Database} {
		_, _ = sum.Write([]byte(part))
		_, _ = sum.Write([]byte{0})
	}
	return hex.EncodeToString(sum.Sum(nil))
}

func (s ConnectionSpec) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("driver", s.Driver),
		slog.String("host", s.Host),
		slog.Int("port", int(s.Port)),
		slog.String("user", s.User),
		slog.String("database", s.Database),
	)
}
