// Package domain holds the trust and identity value objects of the Authly client.
package domain

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
)

// oidUniqueIdentifier is the X.500 uniqueIdentifier attribute (2.5.4.45)
// Authly uses to carry the service entity ID in certificate subjects.
var oidUniqueIdentifier = asn1.ObjectIdentifier{2, 5, 4, 45}

// EntityID is the 128-bit identifier of an Authly entity, rendered as 32
// lowercase hex characters.
type EntityID [16]byte

// ParseEntityID parses the canonical 32-character hex form of an entity ID.
func ParseEntityID(s string) (EntityID, error) {
	var id EntityID
	if len(s) != 32 {
		return id, fmt.Errorf("entity ID must be 32 hex characters, got %d", len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("entity ID is not valid hex: %w", err)
	}
	copy(id[:], raw)
	return id, nil
}

// EntityIDFromBytes constructs an entity ID from its raw 16-byte form.
func EntityIDFromBytes(raw []byte) (EntityID, error) {
	var id EntityID
	if len(raw) != len(id) {
		return id, fmt.Errorf("entity ID must be 16 bytes, got %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the canonical hex form.
func (id EntityID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the ID is the all-zero value.
func (id EntityID) IsZero() bool {
	return id == EntityID{}
}

// ServiceIdentity is the verified identity extracted from a peer or local
// certificate: the Authly entity ID plus the subject common name (label).
// Use IdentityFromCertificate to construct one; a ServiceIdentity is
// immutable after construction.
type ServiceIdentity struct {
	entityID   EntityID
	commonName string
}

// NewServiceIdentity constructs an identity from already-validated parts.
func NewServiceIdentity(entityID EntityID, commonName string) *ServiceIdentity {
	return &ServiceIdentity{entityID: entityID, commonName: commonName}
}

// EntityID returns the Authly entity ID.
func (s *ServiceIdentity) EntityID() EntityID {
	return s.entityID
}

// CommonName returns the subject common name, the human-readable label the
// service was registered under.
func (s *ServiceIdentity) CommonName() string {
	return s.commonName
}

// String renders the identity as "<label> (<entity id>)" for logs.
func (s *ServiceIdentity) String() string {
	if s.commonName == "" {
		return s.entityID.String()
	}
	return fmt.Sprintf("%s (%s)", s.commonName, s.entityID)
}

// Equal reports whether two identities name the same entity.
func (s *ServiceIdentity) Equal(other *ServiceIdentity) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.entityID == other.entityID
}

// IdentityFromCertificate extracts the service identity from a certificate
// subject. The entity ID is carried in the uniqueIdentifier (2.5.4.45)
// subject attribute; a certificate without one is not an Authly identity.
func IdentityFromCertificate(cert *x509.Certificate) (*ServiceIdentity, error) {
	if cert == nil {
		return nil, fmt.Errorf("certificate cannot be nil")
	}

	for _, attr := range cert.Subject.Names {
		if !attr.Type.Equal(oidUniqueIdentifier) {
			continue
		}
		value, ok := attr.Value.(string)
		if !ok {
			return nil, fmt.Errorf("uniqueIdentifier attribute is not a string")
		}
		entityID, err := ParseEntityID(value)
		if err != nil {
			return nil, fmt.Errorf("invalid entity ID in certificate subject: %w", err)
		}
		return &ServiceIdentity{
			entityID:   entityID,
			commonName: cert.Subject.CommonName,
		}, nil
	}

	return nil, fmt.Errorf("certificate subject %q carries no entity ID", cert.Subject.String())
}
