// Package composer defines the wire format of a Composer package
// repository as consumed by standard Composer clients. Field names and
// nesting must not change.
package composer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// DistType is the only archive format this repository serves.
const DistType = "zip"

var vendorRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateVendor checks that a vendor namespace is usable as the left
// half of a Composer package name.
func ValidateVendor(vendor string) error {
	if !vendorRe.MatchString(vendor) {
		return fmt.Errorf("invalid vendor namespace %q", vendor)
	}
	return nil
}

// Repository is the top-level packages.json document.
type Repository struct {
	Packages map[string]PackageVersions `json:"packages"`
}

// PackageVersions maps a version string to its metadata record. It
// serializes newest version first.
type PackageVersions map[string]*PackageVersion

// SortedVersions returns the version strings in descending semver
// order; versions that do not parse sort last, lexicographically.
func (pv PackageVersions) SortedVersions() []string {
	versions := make([]string, 0, len(pv))
	for v := range pv {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		vi, errI := semver.NewVersion(versions[i])
		vj, errJ := semver.NewVersion(versions[j])
		if errI != nil || errJ != nil {
			if errI == nil {
				return true
			}
			if errJ == nil {
				return false
			}
			return versions[i] < versions[j]
		}
		return vi.GreaterThan(vj)
	})
	return versions
}

// MarshalJSON emits the versions newest first. Composer clients accept
// any order, but a stable newest-first document diffs cleanly.
func (pv PackageVersions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, version := range pv.SortedVersions() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(version)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(pv[version])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// PackageVersion is the metadata record for a single released version.
type PackageVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Type    string `json:"type"`
	Dist    *Dist  `json:"dist"`
}

// Dist describes where and how to fetch the artifact for a version.
type Dist struct {
	URL    string `json:"url"`
	Type   string `json:"type"`
	Shasum string `json:"shasum"`
}

// NewRepository returns an empty repository document with the packages
// map allocated, so it always serializes as an object.
func NewRepository() *Repository {
	return &Repository{Packages: map[string]PackageVersions{}}
}

func (r *Repository) MarshalJSONIndent() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
