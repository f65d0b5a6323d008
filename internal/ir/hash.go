package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainPlan       = "memris/plan/v1"
	DomainRepository = "memris/repository/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PlanFingerprint computes a content-addressed identity for a compiled plan.
// Two plans with the same canonical JSON share a fingerprint, so the catalog
// can tell whether a rebuild changed what the engine would execute.
func PlanFingerprint(plan any) (string, error) {
	canonical, err := MarshalCanonical(plan)
	if err != nil {
		return "", fmt.Errorf("PlanFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPlan, canonical), nil
}

// RepositoryFingerprint combines the fingerprints of every method of a
// repository, keyed by method name.
func RepositoryFingerprint(entity string, methods map[string]string) (string, error) {
	obj := map[string]any{
		"entity":  entity,
		"methods": methods,
		"version": PlanVersion,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RepositoryFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRepository, canonical), nil
}

// MustPlanFingerprint is like PlanFingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPlanFingerprint(plan any) string {
	fp, err := PlanFingerprint(plan)
	if err != nil {
		panic(err)
	}
	return fp
}
