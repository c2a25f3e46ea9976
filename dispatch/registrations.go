package dispatch

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Registration is one row of the sign-up export.
type Registration struct {
	Timestamp string
	Email     string
	Endpoint  string
	Secret    string
}

var registrationColumns = []string{"timestamp", "email", "endpoint", "secret"}

// ReadRegistrations parses a CSV with a timestamp,email,endpoint,secret
// header. Columns may come in any order; extra columns are ignored.
func ReadRegistrations(r io.Reader) ([]Registration, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range registrationColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var regs []Registration
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		reg := Registration{
			Timestamp: strings.TrimSpace(rec[idx["timestamp"]]),
			Email:     strings.TrimSpace(rec[idx["email"]]),
			Endpoint:  strings.TrimSpace(rec[idx["endpoint"]]),
			Secret:    strings.TrimSpace(rec[idx["secret"]]),
		}
		if reg.Email == "" || reg.Endpoint == "" || reg.Secret == "" {
			return nil, fmt.Errorf("line %d: email, endpoint and secret are required", line)
		}
		regs = append(regs, reg)
	}
	return regs, nil
}
