package nomos

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is one backend server.
type Endpoint struct {
	Host string `yaml:"host" json:"host" mapstructure:"host"`
	Port int    `yaml:"port" json:"port" mapstructure:"port"`
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Validate checks that the endpoint names a host and a usable port.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return fmt.Errorf("%w: empty host in %q", ErrInvalidEndpoint, e.String())
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidEndpoint, e.Port)
	}
	return nil
}

// ParseEndpoint parses "host:port".
func ParseEndpoint(s string) (Endpoint, error) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: bad port %q", ErrInvalidEndpoint, port)
	}
	e := Endpoint{Host: host, Port: p}
	if err := e.Validate(); err != nil {
		return Endpoint{}, err
	}
	return e, nil
}

// ParseEndpoints parses a list of "host:port" strings, keeping their order.
func ParseEndpoints(addrs ...string) ([]Endpoint, error) {
	endpoints := make([]Endpoint, 0, len(addrs))
	for _, a := range addrs {
		e, err := ParseEndpoint(a)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, nil
}

func (e *Endpoint) UnmarshalText(text []byte) error {
	parsed, err := ParseEndpoint(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
