// Package persistence reads the identifiers a JPA persistence.xml declares.
package persistence

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	billy "github.com/go-git/go-billy/v5"
)

// DefaultMember is where a WAR keeps its persistence descriptor.
const DefaultMember = "WEB-INF/classes/META-INF/persistence.xml"

// ErrNoUnit means the descriptor declares no persistence unit.
var ErrNoUnit = errors.New("no persistence-unit declared")

// Descriptor is the subset of persistence.xml the provisioner needs.
type Descriptor struct {
	Units []Unit `xml:"persistence-unit"`
}

// Unit is one persistence-unit element.
type Unit struct {
	Name             string     `xml:"name,attr"`
	TransactionType  string     `xml:"transaction-type,attr"`
	JTADataSource    string     `xml:"jta-data-source"`
	NonJTADataSource string     `xml:"non-jta-data-source"`
	Properties       []Property `xml:"properties>property"`
}

// Property is a name/value pair under properties.
type Property struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Parse decodes a descriptor.
func Parse(r io.Reader) (*Descriptor, error) {
	var d Descriptor
	if err := xml.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode persistence.xml: %w", err)
	}
	for i := range d.Units {
		u := &d.Units[i]
		u.Name = strings.TrimSpace(u.Name)
		u.JTADataSource = strings.TrimSpace(u.JTADataSource)
		u.NonJTADataSource = strings.TrimSpace(u.NonJTADataSource)
	}
	return &d, nil
}

// Read decodes the descriptor stored at name in fs.
func Read(fs billy.Filesystem, name string) (*Descriptor, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Primary returns the first persistence unit.
func (d *Descriptor) Primary() (*Unit, error) {
	if d == nil || len(d.Units) == 0 {
		return nil, ErrNoUnit
	}
	return &d.Units[0], nil
}

// DataSource returns the JNDI name the unit binds to, preferring the JTA one.
func (u *Unit) DataSource() string {
	if u.JTADataSource != "" {
		return u.JTADataSource
	}
	return u.NonJTADataSource
}

// Property returns the value of the named property.
func (u *Unit) Property(name string) (string, bool) {
	for _, p := range u.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// DataSourceName derives a datasource name from a JNDI name: the segment
// after the last slash or colon.
func DataSourceName(jndi string) string {
	jndi = strings.TrimRight(jndi, "/")
	if i := strings.LastIndexAny(jndi, "/:"); i >= 0 {
		return jndi[i+1:]
	}
	return jndi
}
