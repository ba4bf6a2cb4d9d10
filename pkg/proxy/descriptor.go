package proxy

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"snpublisher/pkg/config"
	"snpublisher/pkg/logger"
)

// Descriptor identifies one candidate proxy endpoint. Immutable once
// constructed. The password field carries the provider's underscore-delimited
// targeting parameters (country, city, session, lifetime, streaming).
type Descriptor struct {
	Host     string
	Port     string
	Username string
	Password string

	Country   string
	City      string
	Session   string
	Lifetime  string
	Streaming string
}

// String returns the canonical provider line for this descriptor:
// host:port:username:password_country-X_city-Y_session-Z_lifetime-L_streaming-S
func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", d.Host, d.Port, d.Username, d.passwordWithParams())
}

func (d Descriptor) passwordWithParams() string {
	var b strings.Builder
	b.WriteString(d.Password)
	if d.Country != "" {
		fmt.Fprintf(&b, "_country-%s", d.Country)
	}
	if d.City != "" {
		fmt.Fprintf(&b, "_city-%s", d.City)
	}
	if d.Session != "" {
		fmt.Fprintf(&b, "_session-%s", d.Session)
	}
	if d.Lifetime != "" {
		fmt.Fprintf(&b, "_lifetime-%s", d.Lifetime)
	}
	if d.Streaming != "" {
		fmt.Fprintf(&b, "_streaming-%s", d.Streaming)
	}
	return b.String()
}

// URL builds the SOCKS5 connection URL for this descriptor. The targeting
// parameters ride inside the password, which is how residential providers
// route session selection.
func (d Descriptor) URL() *url.URL {
	return &url.URL{
		Scheme: "socks5",
		User:   url.UserPassword(d.Username, d.passwordWithParams()),
		Host:   fmt.Sprintf("%s:%s", d.Host, d.Port),
	}
}

// ParseDescriptor parses one provider proxy line. Lines with fewer than 4
// colon-delimited fields are rejected.
func ParseDescriptor(line string) (Descriptor, error) {
	parts := strings.SplitN(line, ":", 4)
	if len(parts) < 4 {
		return Descriptor{}, fmt.Errorf("malformed proxy line %q: expected host:port:username:password", line)
	}

	d := Descriptor{
		Host:     parts[0],
		Port:     parts[1],
		Username: parts[2],
	}

	// Password is everything up to the first underscore-delimited parameter.
	// A segment without a key-value dash belongs to the preceding field
	// (session ids like "summer_3" contain underscores themselves).
	segments := strings.Split(parts[3], "_")
	d.Password = segments[0]
	last := &d.Password
	for _, seg := range segments[1:] {
		key, value, ok := strings.Cut(seg, "-")
		if !ok {
			*last += "_" + seg
			continue
		}
		switch key {
		case "country":
			d.Country = value
			last = &d.Country
		case "city":
			d.City = value
			last = &d.City
		case "session":
			d.Session = value
			last = &d.Session
		case "lifetime":
			d.Lifetime = value
			last = &d.Lifetime
		case "streaming":
			d.Streaming = value
			last = &d.Streaming
		default:
			*last += "_" + seg
		}
	}

	if d.Host == "" || d.Port == "" || d.Username == "" || d.Password == "" {
		return Descriptor{}, fmt.Errorf("malformed proxy line %q: empty field", line)
	}

	return d, nil
}

// LoadDescriptors reads a proxy list file, one descriptor per line.
// Malformed lines are skipped with a warning rather than failing the load.
func LoadDescriptors(path string, log logger.Logger) ([]Descriptor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open proxy list: %w", err)
	}
	defer file.Close()

	var descriptors []Descriptor
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		d, err := ParseDescriptor(line)
		if err != nil {
			log.WarnWithFields("skipping malformed proxy line", map[string]interface{}{
				"line":  line,
				"error": err.Error(),
			})
			continue
		}
		descriptors = append(descriptors, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxy list: %w", err)
	}

	log.InfoWithFields("loaded proxy list", map[string]interface{}{
		"path":  path,
		"count": len(descriptors),
	})
	return descriptors, nil
}

// GenerateDescriptors fans each configured base session out into
// cfg.SessionFanout sub-session variants to diversify the pool against
// provider-side session reuse.
func GenerateDescriptors(cfg *config.ProxyConfig) []Descriptor {
	var descriptors []Descriptor
	for _, base := range cfg.BaseSessions {
		base = strings.TrimSpace(base)
		if base == "" {
			continue
		}
		for i := 0; i < cfg.SessionFanout; i++ {
			descriptors = append(descriptors, Descriptor{
				Host:      cfg.Host,
				Port:      cfg.Port,
				Username:  cfg.Username,
				Password:  cfg.Password,
				Country:   strings.ToLower(cfg.CountryCode),
				City:      strings.ToLower(cfg.City),
				Session:   fmt.Sprintf("%s_%d", base, i),
				Lifetime:  cfg.Lifetime,
				Streaming: cfg.Streaming,
			})
		}
	}
	return descriptors
}
