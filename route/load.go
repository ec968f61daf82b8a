package route

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type tableFile struct {
	Landing string `yaml:"landing"`
	Routes  []Spec `yaml:"routes"`
}

// LoadTable reads a YAML route table:
//
//	landing: /dashboard
//	routes:
//	  - path: /login
//	    guest_only: true
//	  - path: /dashboard
//	    requires_auth: true
//	    redirect_on_fail: /login
func LoadTable(r io.Reader) (*Table, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f tableFile
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty route file", ErrInvalidSpec)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return NewTable(f.Landing, f.Routes...)
}

// LoadFile reads a YAML route table from path.
func LoadFile(path string) (*Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return LoadTable(fh)
}
