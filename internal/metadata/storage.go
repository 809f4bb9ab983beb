// Package metadata records which manifest entry a domain was created from,
// using libvirt's custom XML metadata so the record lives with the domain.
package metadata

import (
	"encoding/xml"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"
)

const (
	// MetadataNamespace is the XML namespace for virt-compose metadata.
	MetadataNamespace = "https://github.com/jbweber/virtcompose/v1"

	// MetadataKey is the element prefix used inside the domain metadata.
	MetadataKey = "virt-compose"
)

// LibvirtClient is the subset of *libvirt.Libvirt used for metadata.
type LibvirtClient interface {
	DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error)
}

// Record is what virt-compose remembers about a machine it defined.
type Record struct {
	Project   string `yaml:"project,omitempty"` // Directory of the manifest that created the domain
	Image     string `yaml:"image"`
	OS        string `yaml:"os,omitempty"`
	Installer string `yaml:"installer"`
	Volume    string `yaml:"volume"`
	Pool      string `yaml:"pool"`
}

// composeMetadata wraps the YAML record so it stays readable in virsh dumpxml.
type composeMetadata struct {
	XMLName xml.Name `xml:"metadata"`
	Xmlns   string   `xml:"xmlns,attr"`
	Record  string   `xml:",chardata"`
}

// Store saves the record to the domain's metadata, replacing any previous one.
func Store(l LibvirtClient, domain libvirt.Domain, record *Record) error {
	if record == nil {
		return fmt.Errorf("metadata record is nil")
	}

	yamlData, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata record: %w", err)
	}

	xmlData, err := xml.Marshal(composeMetadata{
		Xmlns:  MetadataNamespace,
		Record: string(yamlData),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata to XML: %w", err)
	}

	err = l.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{string(xmlData)},
		libvirt.OptString{MetadataKey},
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainModificationImpact(0), // affect current state, persisted for defined domains
	)
	if err != nil {
		return fmt.Errorf("failed to set libvirt domain metadata: %w", err)
	}

	return nil
}

// Load reads the record back from a domain's metadata.
func Load(l LibvirtClient, domain libvirt.Domain) (*Record, error) {
	xmlStr, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get libvirt domain metadata: %w", err)
	}

	return Decode(xmlStr)
}

// Decode parses the metadata element produced by Store.
func Decode(xmlStr string) (*Record, error) {
	var metadata composeMetadata
	if err := xml.Unmarshal([]byte(xmlStr), &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}

	var record Record
	if err := yaml.Unmarshal([]byte(metadata.Record), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata record: %w", err)
	}
	if record.Image == "" {
		return nil, fmt.Errorf("metadata record has no image")
	}

	return &record, nil
}

// Exists reports whether virt-compose metadata is present on a domain.
func Exists(l LibvirtClient, domain libvirt.Domain) bool {
	_, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainModificationImpact(0),
	)
	return err == nil
}
