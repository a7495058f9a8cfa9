package tenant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateIDDeterministic(t *testing.T) {
	a := GenerateID("acme-debates")
	b := GenerateID("acme-debates")
	require.Equal(t, a, b)
	require.Len(t, a, IDLength)
	require.Regexp(t, `^[0-9a-f]{12}$`, a)

	require.NotEqual(t, a, GenerateID("acme-debate"))
}

func TestDerivedNames(t *testing.T) {
	id := GenerateID("acme-debates")
	require.Equal(t, "nekotab_"+id, DBName(id))
	require.Equal(t, "tenant_"+id, DBUser(id))
	require.Equal(t, "tenant-"+id, StackName(id))
	require.Equal(t, "tenant-"+id+"_web", ServiceName(id))
	require.Equal(t, "https://acme-debates.nekotab.app", URL("acme-debates", "nekotab.app"))
}

func TestValidate(t *testing.T) {
	reserved := ReservedSet(DefaultReservedSubdomains)

	valid := []string{"my-tournament-2025", "acme", "a1b2", "four", "x0-0x"}
	for _, s := range valid {
		require.NoError(t, Validate(s, reserved), s)
	}

	invalid := []string{
		"ab",                // too short
		"abc",               // still below 4 chars
		"-abcd",             // leading hyphen
		"abcd-",             // trailing hyphen
		"UPPER",             // uppercase
		"has space",         // whitespace
		"a.b.c",             // dots
		"",                  // empty
		"this-subdomain-is-way-too-long-to-be-allowed", // > 32 chars
	}
	for _, s := range invalid {
		require.ErrorIs(t, Validate(s, reserved), ErrInvalidSubdomain, s)
	}

	for _, s := range []string{"admin", "www", "api"} {
		require.ErrorIs(t, Validate(s, reserved), ErrReservedSubdomain, s)
	}
}
