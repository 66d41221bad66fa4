package composer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateVendor(t *testing.T) {
	for _, vendor := range []string{"acme", "acme-corp", "acme_corp", "acme.corp", "Acme2"} {
		require.NoError(t, ValidateVendor(vendor), "vendor %s", vendor)
	}
	for _, vendor := range []string{"", "acme corp", "acme/corp", "acme!", "ö"} {
		require.Error(t, ValidateVendor(vendor), "vendor %s", vendor)
	}
}

func TestSortedVersions(t *testing.T) {
	pv := PackageVersions{
		"1.0.0":   &PackageVersion{},
		"2.1.0":   &PackageVersion{},
		"2.0.0":   &PackageVersion{},
		"1.10.0":  &PackageVersion{},
		"not-sem": &PackageVersion{},
	}
	require.Equal(t, []string{"2.1.0", "2.0.0", "1.10.0", "1.0.0", "not-sem"}, pv.SortedVersions())
}

func TestPackageVersionsMarshalNewestFirst(t *testing.T) {
	pv := PackageVersions{
		"1.0.0": {Name: "acme/widget", Version: "1.0.0", Type: "wordpress-plugin", Dist: &Dist{URL: "u1", Type: DistType, Shasum: "s1"}},
		"2.0.0": {Name: "acme/widget", Version: "2.0.0", Type: "wordpress-plugin", Dist: &Dist{URL: "u2", Type: DistType, Shasum: "s2"}},
	}

	data, err := json.Marshal(pv)
	require.NoError(t, err)
	require.Less(t, strings.Index(string(data), `"2.0.0"`), strings.Index(string(data), `"1.0.0"`))

	// round-trips as a plain map
	var back PackageVersions
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back, 2)
	require.Equal(t, "s2", back["2.0.0"].Dist.Shasum)
}

func TestRepositoryWireShape(t *testing.T) {
	repo := NewRepository()
	repo.Packages["acme/widget"] = PackageVersions{
		"1.0.0": {
			Name:    "acme/widget",
			Version: "1.0.0",
			Type:    "wordpress-plugin",
			Dist:    &Dist{URL: "https://example.com/dist/widget/widget-1.0.0.zip", Type: DistType, Shasum: "abc"},
		},
	}

	data, err := json.Marshal(repo)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"packages": {
			"acme/widget": {
				"1.0.0": {
					"name": "acme/widget",
					"version": "1.0.0",
					"type": "wordpress-plugin",
					"dist": {
						"url": "https://example.com/dist/widget/widget-1.0.0.zip",
						"type": "zip",
						"shasum": "abc"
					}
				}
			}
		}
	}`, string(data))
}

func TestEmptyRepositorySerializesAsObject(t *testing.T) {
	data, err := NewRepository().MarshalJSONIndent()
	require.NoError(t, err)
	require.JSONEq(t, `{"packages": {}}`, string(data))
}
